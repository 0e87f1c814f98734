package latencyhandler

import (
	"testing"
	"time"

	"github.com/example/anilock/internal/clock"
	"github.com/example/anilock/internal/protocol"
	"github.com/example/anilock/internal/protocoltest"
)

const (
	subC2SActionRequest1 = 0x1a
	subC2SActionRequest2 = 0x1b
	subS2CActionEffect   = 0x20
	subS2CControlSelf    = 0x30
	subS2CControl        = 0x31
	subS2CCast           = 0x32
)

func testSubtypes() protocol.SubTypeSet {
	return protocol.SubTypeSet{
		C2SActionRequest:    [2]uint16{subC2SActionRequest1, subC2SActionRequest2},
		S2CActionEffects:    [5]uint16{subS2CActionEffect, 0x21, 0x22, 0x23, 0x24},
		S2CActorControlSelf: subS2CControlSelf,
		S2CActorControl:     subS2CControl,
		S2CActorCast:        subS2CCast,
	}
}

func TestHandleOutgoingAlwaysForwards(t *testing.T) {
	h := New("conn-1", testSubtypes())
	frame := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 100, 1)
	if !h.HandleOutgoing(frame) {
		t.Fatalf("expected outgoing action request to be forwarded")
	}
}

func TestInstantActionEffectIsRewrittenOnce(t *testing.T) {
	start := time.Unix(1000, 0)
	fake := clock.NewFake(start)
	h := New("conn-1", testSubtypes(), WithClock(fake))

	req := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 100, 1)
	h.HandleOutgoing(req)

	fake.Advance(120 * time.Millisecond)
	effect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 1, 1, 100, 0.5)
	if !h.HandleIncoming(effect) {
		t.Fatalf("expected action effect to be forwarded")
	}
	got, _ := effect.ActionEffect()
	if got.AnimationLockDuration == 0.5 {
		t.Fatalf("expected animation lock duration to be rewritten, stayed at %v", got.AnimationLockDuration)
	}
}

func TestCastTailIsNotRewritten(t *testing.T) {
	start := time.Unix(1000, 0)
	fake := clock.NewFake(start)
	h := New("conn-1", testSubtypes(), WithClock(fake))

	req := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 200, 5)
	h.HandleOutgoing(req)

	cast := protocoltest.NewActorCast(subS2CCast, 1, 1, 200, 2.5, 1)
	h.HandleIncoming(cast)

	fake.Advance(2500 * time.Millisecond)
	effect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 1, 5, 200, 0.1)
	h.HandleIncoming(effect)

	got, _ := effect.ActionEffect()
	if got.AnimationLockDuration != 0.1 {
		t.Fatalf("expected cast-tail wait time to stay at 0.1, got %v", got.AnimationLockDuration)
	}
}

func TestServerOriginatedEffectAfterCastIsLeftUntouched(t *testing.T) {
	start := time.Unix(1000, 0)
	fake := clock.NewFake(start)
	h := New("conn-1", testSubtypes(), WithClock(fake))

	req := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 200, 5)
	h.HandleOutgoing(req)

	cast := protocoltest.NewActorCast(subS2CCast, 1, 1, 200, 2.5, 1)
	h.HandleIncoming(cast)

	fake.Advance(2500 * time.Millisecond)
	castEffect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 1, 5, 200, 0.1)
	h.HandleIncoming(castEffect)

	// The cast is now latest_successful with CastFlag set, so a
	// subsequent server-originated effect must fail
	// ApplyServerOriginatedEffect's eligibility guard and be forwarded
	// with its own reported duration unchanged, not folded onto the
	// finished cast's stale response time.
	fake.Advance(50 * time.Millisecond)
	serverEffect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 1, 0, 300, 0.3)
	h.HandleIncoming(serverEffect)

	got, _ := serverEffect.ActionEffect()
	if got.AnimationLockDuration != 0.3 {
		t.Fatalf("expected server-originated effect after a cast to stay at 0.3, got %v", got.AnimationLockDuration)
	}
}

func TestSidebandFrameIsSwallowed(t *testing.T) {
	h := New("conn-1", testSubtypes())
	sideband := protocoltest.NewSideband(0x40, 1, 0.333)
	if h.HandleIncoming(sideband) {
		t.Fatalf("expected sideband frame to be swallowed")
	}
}

func TestSidebandOverridesEffectDuration(t *testing.T) {
	start := time.Unix(1000, 0)
	fake := clock.NewFake(start)
	h := New("conn-1", testSubtypes(), WithClock(fake))

	req := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 100, 1)
	h.HandleOutgoing(req)

	sideband := protocoltest.NewSideband(0x40, 1, 0.612)
	h.HandleIncoming(sideband)

	fake.Advance(50 * time.Millisecond)
	effect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 1, 1, 100, 0.5)
	h.HandleIncoming(effect)

	got, _ := effect.ActionEffect()
	if got.AnimationLockDuration == 0.5 {
		t.Fatalf("expected sideband-supplied wait time to take precedence over the frame's own field")
	}
}

func TestActionRejectedDropsFrontOfQueue(t *testing.T) {
	h := New("conn-1", testSubtypes())
	req1 := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 100, 1)
	req2 := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 101, 2)
	h.HandleOutgoing(req1)
	h.HandleOutgoing(req2)

	rejected := protocoltest.NewActionRejected(subS2CControlSelf, 1, 1, 1, 100)
	h.HandleIncoming(rejected)

	if h.queue.Len() != 1 {
		t.Fatalf("expected one action remaining after rejection, got %d", h.queue.Len())
	}
	front, _ := h.queue.Front()
	if front.Sequence != 2 {
		t.Fatalf("expected remaining action sequence 2, got %d", front.Sequence)
	}
}

func TestCancelCastDropsUntilMatchingActionID(t *testing.T) {
	h := New("conn-1", testSubtypes())
	req := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 300, 7)
	h.HandleOutgoing(req)

	cancel := protocoltest.NewCancelCast(subS2CControl, 1, 1, 300)
	h.HandleIncoming(cancel)

	if h.queue.Len() != 0 {
		t.Fatalf("expected queue drained after cancel, got len %d", h.queue.Len())
	}
}

func TestThirdPartyEffectsAreIgnored(t *testing.T) {
	h := New("conn-1", testSubtypes())
	effect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 2, 1, 100, 0.5)
	if !h.HandleIncoming(effect) {
		t.Fatalf("expected frame to still be forwarded")
	}
	got, _ := effect.ActionEffect()
	if got.AnimationLockDuration != 0.5 {
		t.Fatalf("expected third-party effect untouched, got %v", got.AnimationLockDuration)
	}
}

type recordingPublisher struct {
	calls int
	last  struct {
		connectionID             string
		actionID, sourceSequence uint32
		originalWaitMs, resolvedWaitMs int64
	}
}

func (p *recordingPublisher) PublishRewrite(connectionID string, actionID, sourceSequence uint32, originalWaitMs, resolvedWaitMs int64, observedAt time.Time) {
	p.calls++
	p.last.connectionID = connectionID
	p.last.actionID = actionID
	p.last.sourceSequence = sourceSequence
	p.last.originalWaitMs = originalWaitMs
	p.last.resolvedWaitMs = resolvedWaitMs
}

func TestRewriteIsPublishedToTelemetry(t *testing.T) {
	start := time.Unix(1000, 0)
	fake := clock.NewFake(start)
	publisher := &recordingPublisher{}
	h := New("conn-1", testSubtypes(), WithClock(fake), WithTelemetryPublisher(publisher))

	req := protocoltest.NewActionRequest(subC2SActionRequest1, 1, 1, 100, 1)
	h.HandleOutgoing(req)

	fake.Advance(120 * time.Millisecond)
	effect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 1, 1, 100, 0.5)
	h.HandleIncoming(effect)

	if publisher.calls != 1 {
		t.Fatalf("expected exactly one telemetry publish, got %d", publisher.calls)
	}
	if publisher.last.connectionID != "conn-1" || publisher.last.actionID != 1 {
		t.Fatalf("unexpected published event: %+v", publisher.last)
	}
}

func TestNoTelemetryPublishWhenUnrewritten(t *testing.T) {
	publisher := &recordingPublisher{}
	h := New("conn-1", testSubtypes(), WithTelemetryPublisher(publisher))

	effect := protocoltest.NewActionEffect(subS2CActionEffect, 1, 2, 1, 100, 0.5)
	h.HandleIncoming(effect)

	if publisher.calls != 0 {
		t.Fatalf("expected no telemetry publish for an effect that matched nothing, got %d", publisher.calls)
	}
}
