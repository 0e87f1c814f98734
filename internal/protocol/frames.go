// Package protocol describes the narrow slice of a framed, multiplexed
// game protocol the latency mitigation core cares about. It is a
// read-mostly view: parsing raw bytes into these shapes, and frame
// extraction off the wire, is the job of an external collaborator (TCP
// reassembly plus socket interception, both out of scope here). The core
// only ever sees an already-decoded Frame.
package protocol

// SegmentType distinguishes the handful of segment kinds a game connection
// carries. Only SegmentIPC is ever routed to the latency mitigation core.
type SegmentType int

const (
	SegmentOther SegmentType = iota
	SegmentIPC
)

// IPCType distinguishes game-originated IPC payloads from the handler's own
// sideband channel.
type IPCType int

const (
	// IPCInterested carries ordinary client/server game messages.
	IPCInterested IPCType = iota
	// IPCCustom carries handler-private sideband messages injected by the
	// collaborator (see CustomOriginalWaitTime) that must never reach the
	// game client.
	IPCCustom
)

// SubTypeSet enumerates the configuration-supplied IPC sub-type
// discriminants the handler matches against. Configuration of these values
// is the collaborator's responsibility; they vary by game client version.
type SubTypeSet struct {
	C2SActionRequest    [2]uint16
	S2CActionEffects    [5]uint16
	S2CActorControlSelf uint16
	S2CActorControl     uint16
	S2CActorCast        uint16
}

// IsActionRequest reports whether subType matches one of the two configured
// client action-request discriminants.
func (s SubTypeSet) IsActionRequest(subType uint16) bool {
	return subType == s.C2SActionRequest[0] || subType == s.C2SActionRequest[1]
}

// IsActionEffect reports whether subType matches one of the five configured
// server action-effect fan-out discriminants.
func (s SubTypeSet) IsActionEffect(subType uint16) bool {
	for _, candidate := range s.S2CActionEffects {
		if subType == candidate {
			return true
		}
	}
	return false
}

// IsActorControlSelf reports whether subType is the actor-control-self
// discriminant.
func (s SubTypeSet) IsActorControlSelf(subType uint16) bool {
	return subType == s.S2CActorControlSelf
}

// IsActorControl reports whether subType is the actor-control discriminant.
func (s SubTypeSet) IsActorControl(subType uint16) bool {
	return subType == s.S2CActorControl
}

// IsActorCast reports whether subType is the actor-cast discriminant.
func (s SubTypeSet) IsActorCast(subType uint16) bool {
	return subType == s.S2CActorCast
}

// ActorControlSelfCategory narrows an ActorControlSelf message to the
// sub-cases the handler cares about.
type ActorControlSelfCategory int

const (
	ActorControlSelfOther ActorControlSelfCategory = iota
	ActionRejected
)

// ActorControlCategory narrows an ActorControl message to the sub-cases the
// handler cares about.
type ActorControlCategory int

const (
	ActorControlOther ActorControlCategory = iota
	CancelCast
)

// ActionRequest is the C2S payload view for an outbound action request.
type ActionRequest struct {
	ActionID uint32
	Sequence uint32
}

// ActionEffect is the S2C payload view for a server-reported action outcome.
// AnimationLockDuration is expressed in seconds, matching the wire encoding;
// the handler is the only writer of this field post-decode.
type ActionEffect struct {
	SourceSequence        uint32
	ActionID              uint32
	AnimationLockDuration float32
}

// CustomOriginalWaitTime is the handler-private sideband payload carrying a
// high-precision animation-lock duration for a given source sequence. It
// exists because the default float32-seconds encoding on ActionEffect loses
// precision; when present for a sequence it is authoritative and the
// sideband frame itself must never reach the game.
type CustomOriginalWaitTime struct {
	SourceSequence   uint32
	OriginalWaitTime float32
}

// Rollback identifies the request an ActionRejected control message is
// rolling back. SourceSequence is zero when the server only identified the
// action by id.
type Rollback struct {
	SourceSequence uint32
	ActionID       uint32
}

// ActorControlSelf is the S2C payload view for self-targeted actor control
// messages; only the ActionRejected category carries a Rollback.
type ActorControlSelf struct {
	Category ActorControlSelfCategory
	Rollback Rollback
}

// CancelCastPayload identifies the action whose cast is being cancelled.
type CancelCastPayload struct {
	ActionID uint32
}

// ActorControl is the S2C payload view for actor control messages; only the
// CancelCast category carries a CancelCastPayload.
type ActorControl struct {
	Category   ActorControlCategory
	CancelCast CancelCastPayload
}

// ActorCast is the S2C payload view announcing that the front of a
// connection's pending queue has been acknowledged as a cast.
type ActorCast struct {
	ActionID uint32
	CastTime float32
	TargetID uint64
}

// Frame is the decoded view the core operates on. Implementations are
// supplied by the collaborator that performs frame extraction; the core
// never parses wire bytes itself.
type Frame interface {
	// Segment reports which wire segment carried this frame.
	Segment() SegmentType
	// IPCType reports whether this is a game message or sideband message.
	IPCType() IPCType
	// IPCSubType is the 16-bit discriminant matched against SubTypeSet.
	IPCSubType() uint16
	// CurrentActor and SourceActor identify the subject of the message.
	// The inbound path only processes frames where these are equal,
	// filtering out third-party effects.
	CurrentActor() uint64
	SourceActor() uint64

	// ActionRequest returns the C2S action-request view, if this frame
	// carries one.
	ActionRequest() (ActionRequest, bool)
	// ActionEffect returns the S2C action-effect view, if this frame
	// carries one.
	ActionEffect() (ActionEffect, bool)
	// RewriteAnimationLockDuration is the single mutation the handler is
	// permitted to perform: overwriting the animation-lock duration of an
	// action-effect frame in place, in seconds. Implementations must leave
	// every other field and byte untouched.
	RewriteAnimationLockDuration(seconds float64)
	// CustomOriginalWaitTime returns the sideband view, if this frame
	// carries one.
	CustomOriginalWaitTime() (CustomOriginalWaitTime, bool)
	// ActorControlSelf returns the self-targeted actor-control view, if
	// this frame carries one.
	ActorControlSelf() (ActorControlSelf, bool)
	// ActorControl returns the actor-control view, if this frame carries
	// one.
	ActorControl() (ActorControl, bool)
	// ActorCast returns the actor-cast view, if this frame carries one.
	ActorCast() (ActorCast, bool)
}
