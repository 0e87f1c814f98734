// Package latencyhandler implements the per-connection state machine that
// watches a player's outgoing action requests and the server's incoming
// action-effect responses, rewriting the reported animation-lock duration
// so consecutive actions queue smoothly instead of tripping the server's
// input-rate sanity check.
package latencyhandler

import (
	"time"

	"github.com/example/anilock/internal/actionqueue"
	"github.com/example/anilock/internal/clock"
	"github.com/example/anilock/internal/locktimeline"
	"github.com/example/anilock/internal/logging"
	"github.com/example/anilock/internal/protocol"
	"github.com/example/anilock/internal/stats"
)

// NetworkLatencyProvider reports a connection's current measured network
// latency to its game server. Measuring it is the job of the socket
// collaborator; the handler only consumes the result.
type NetworkLatencyProvider interface {
	CurrentNetworkLatency() (time.Duration, bool)
}

type noLatencyProvider struct{}

func (noLatencyProvider) CurrentNetworkLatency() (time.Duration, bool) { return 0, false }

// TelemetryPublisher receives one event per rewritten animation-lock
// duration, for a debug viewer to display. Implemented by
// internal/telemetry.Broadcaster; defined here so this package does not
// need to import it.
type TelemetryPublisher interface {
	PublishRewrite(connectionID string, actionID, sourceSequence uint32, originalWaitMs, resolvedWaitMs int64, observedAt time.Time)
}

type noTelemetryPublisher struct{}

func (noTelemetryPublisher) PublishRewrite(string, uint32, uint32, int64, int64, time.Time) {}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithClock overrides the handler's time source.
func WithClock(c clock.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// WithLatencyProvider supplies the connection's network latency source.
func WithLatencyProvider(p NetworkLatencyProvider) Option {
	return func(h *Handler) { h.latency = p }
}

// WithLogger attaches a logger already scoped to this connection.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithAutoAdjustingExtraDelay enables the statistics-driven delay estimate
// in place of the fixed ExtraDelay constant.
func WithAutoAdjustingExtraDelay(enabled bool) Option {
	return func(h *Handler) { h.autoAdjusting = enabled }
}

// WithLatencyCorrection enables outlier correction within the
// auto-adjusting estimate.
func WithLatencyCorrection(enabled bool) Option {
	return func(h *Handler) { h.latencyCorrection = enabled }
}

// WithStatsWindowSize overrides the rolling statistics window capacity.
func WithStatsWindowSize(size int) Option {
	return func(h *Handler) { h.statsWindowSize = size }
}

// WithMitigationLogging controls whether a structured log line is emitted
// for every rewritten effect. Disabling it silences only that one log
// line; general protocol tracing is unaffected.
func WithMitigationLogging(enabled bool) Option {
	return func(h *Handler) { h.mitigationLogging = enabled }
}

// WithTelemetryPublisher attaches a sink for rewrite-decision events, for
// a debug viewer to display in real time.
func WithTelemetryPublisher(p TelemetryPublisher) Option {
	return func(h *Handler) {
		if p != nil {
			h.telemetry = p
		}
	}
}

// Handler is the per-connection latency mitigation state machine. It is
// not safe for concurrent use: a connection's frames are expected to be
// delivered from a single goroutine, matching the socket collaborator's
// sequential per-connection read loop.
type Handler struct {
	id       string
	subtypes protocol.SubTypeSet

	queue    actionqueue.Queue
	timeline *locktimeline.Timeline

	clock     clock.Clock
	latency   NetworkLatencyProvider
	logger    *logging.Logger
	telemetry TelemetryPublisher

	autoAdjusting     bool
	latencyCorrection bool
	statsWindowSize   int
	mitigationLogging bool
}

// New constructs a Handler for a single connection, identified by id for
// logging purposes.
func New(id string, subtypes protocol.SubTypeSet, opts ...Option) *Handler {
	h := &Handler{
		id:                id,
		subtypes:          subtypes,
		clock:             clock.System{},
		latency:           noLatencyProvider{},
		logger:            logging.NewTestLogger(),
		telemetry:         noTelemetryPublisher{},
		statsWindowSize:   stats.DefaultCapacity,
		mitigationLogging: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.timeline = locktimeline.NewTimeline(stats.New(h.statsWindowSize), stats.New(h.statsWindowSize))
	return h
}

// HandleOutgoing processes a client-to-server frame. It returns true when
// the frame should continue on to the server, which is always the case:
// the handler only ever observes outgoing traffic, never suppresses it.
func (h *Handler) HandleOutgoing(frame protocol.Frame) bool {
	if frame.Segment() != protocol.SegmentIPC || frame.IPCType() != protocol.IPCInterested {
		return true
	}
	if !h.subtypes.IsActionRequest(frame.IPCSubType()) {
		return true
	}
	request, ok := frame.ActionRequest()
	if !ok {
		return true
	}

	now := h.clock.Now()
	h.queue.Push(actionqueue.PendingAction{
		ActionID:    request.ActionID,
		Sequence:    request.Sequence,
		RequestTime: now,
	})
	h.timeline.OnActionRequestQueued(now, h.queue.Len())

	h.logger.Debug("outgoing action request",
		logging.String("connection_id", h.id),
		logging.Int("action_id", int(request.ActionID)),
		logging.Int("sequence", int(request.Sequence)))

	return true
}

// HandleIncoming processes a server-to-client frame. It returns false when
// the frame must be swallowed instead of relayed to the client, which is
// the case for the handler's own sideband messages.
func (h *Handler) HandleIncoming(frame protocol.Frame) bool {
	if frame.Segment() != protocol.SegmentIPC {
		return true
	}

	if frame.IPCType() == protocol.IPCCustom {
		h.handleSideband(frame)
		return false
	}

	if frame.IPCType() != protocol.IPCInterested {
		return true
	}
	if frame.CurrentActor() != frame.SourceActor() {
		return true
	}

	switch {
	case h.subtypes.IsActionEffect(frame.IPCSubType()):
		h.handleActionEffect(frame)
	case h.subtypes.IsActorControlSelf(frame.IPCSubType()):
		h.handleActorControlSelf(frame)
	case h.subtypes.IsActorControl(frame.IPCSubType()):
		h.handleActorControl(frame)
	case h.subtypes.IsActorCast(frame.IPCSubType()):
		h.handleActorCast(frame)
	}
	return true
}

func (h *Handler) handleSideband(frame protocol.Frame) {
	sideband, ok := frame.CustomOriginalWaitTime()
	if !ok {
		return
	}
	h.timeline.RecordOriginalWaitTime(sideband.SourceSequence, durationFromSeconds(sideband.OriginalWaitTime))
}

func (h *Handler) handleActionEffect(frame protocol.Frame) {
	effect, ok := frame.ActionEffect()
	if !ok {
		return
	}
	now := h.clock.Now()
	originalWaitTime := h.timeline.TakeOriginalWaitTime(effect.SourceSequence, durationFromSeconds(effect.AnimationLockDuration))
	waitTime := originalWaitTime

	if effect.SourceSequence == 0 {
		if resolved, applied := h.timeline.ApplyServerOriginatedEffect(now, effect.ActionID, originalWaitTime); applied {
			waitTime = resolved
		}
	} else {
		for _, dropped := range h.queue.DropUntilSequence(effect.SourceSequence) {
			h.logDropped(dropped)
		}
		if front, ok := h.queue.Front(); ok {
			h.timeline.SetLatestSuccessful(front)
			if !front.CastFlag {
				cfg := locktimeline.EstimatorConfig{
					AutoAdjusting:     h.autoAdjusting,
					LatencyCorrection: h.latencyCorrection,
				}
				if networkLatency, ok := h.latency.CurrentNetworkLatency(); ok {
					cfg.NetworkLatency = networkLatency
					cfg.NetworkLatencyAvailable = true
				}
				resolved, updated := h.timeline.ApplyInstantActionEffect(now, front, originalWaitTime, cfg)
				waitTime = resolved
				h.timeline.SetLatestSuccessful(updated)
			}
			h.queue.PopFront()
		}
	}

	if waitTime < 0 {
		waitTime = 0
	}
	rewritten := waitTime != originalWaitTime
	if rewritten {
		frame.RewriteAnimationLockDuration(waitTime.Seconds())
		h.telemetry.PublishRewrite(h.id, effect.ActionID, effect.SourceSequence,
			originalWaitTime.Milliseconds(), waitTime.Milliseconds(), now)
	}

	if rewritten && h.mitigationLogging {
		h.logger.Info("animation lock duration rewritten",
			logging.String("connection_id", h.id),
			logging.Int("action_id", int(effect.ActionID)),
			logging.Int("source_sequence", int(effect.SourceSequence)),
			logging.Int("original_wait_ms", int(originalWaitTime.Milliseconds())),
			logging.Int("resolved_wait_ms", int(waitTime.Milliseconds())))
	}

	h.logger.Debug("action effect",
		logging.String("connection_id", h.id),
		logging.Int("action_id", int(effect.ActionID)),
		logging.Int("source_sequence", int(effect.SourceSequence)),
		logging.Int("original_wait_ms", int(originalWaitTime.Milliseconds())),
		logging.Int("resolved_wait_ms", int(waitTime.Milliseconds())))
}

func (h *Handler) handleActorControlSelf(frame protocol.Frame) {
	self, ok := frame.ActorControlSelf()
	if !ok || self.Category != protocol.ActionRejected {
		return
	}
	for _, dropped := range h.queue.DropUntilRejected(self.Rollback.SourceSequence, self.Rollback.ActionID) {
		h.logDropped(dropped)
	}
	h.queue.PopFront()

	h.logger.Debug("action rejected",
		logging.String("connection_id", h.id),
		logging.Int("action_id", int(self.Rollback.ActionID)),
		logging.Int("source_sequence", int(self.Rollback.SourceSequence)))
}

func (h *Handler) handleActorControl(frame protocol.Frame) {
	control, ok := frame.ActorControl()
	if !ok || control.Category != protocol.CancelCast {
		return
	}
	for _, dropped := range h.queue.DropUntilActionID(control.CancelCast.ActionID) {
		h.logDropped(dropped)
	}
	h.queue.PopFront()

	h.logger.Debug("cast cancelled",
		logging.String("connection_id", h.id),
		logging.Int("action_id", int(control.CancelCast.ActionID)))
}

func (h *Handler) handleActorCast(frame protocol.Frame) {
	if _, ok := frame.ActorCast(); !ok {
		return
	}
	h.queue.MarkFrontCast()
}

func (h *Handler) logDropped(dropped actionqueue.PendingAction) {
	h.logger.Debug("action request ignored for processing",
		logging.String("connection_id", h.id),
		logging.Int("action_id", int(dropped.ActionID)),
		logging.Int("sequence", int(dropped.Sequence)))
}

func durationFromSeconds(seconds float32) time.Duration {
	return time.Duration(float64(seconds) * float64(time.Second))
}
