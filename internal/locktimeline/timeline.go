// Package locktimeline tracks, per connection, the point in time the
// player's current animation lock ends, and estimates the extra delay to
// fold into a freshly observed lock so that consecutive actions do not
// get rejected by the server's own input-rate sanity check.
package locktimeline

import (
	"time"

	"github.com/example/anilock/internal/actionqueue"
	"github.com/example/anilock/internal/stats"
)

// Timeline is the per-connection animation-lock cursor plus the rolling
// statistics the delay estimator reads. It is not safe for concurrent use;
// callers serialize access per connection, matching the single-threaded
// per-connection handler that owns it.
type Timeline struct {
	lockEndsAt          time.Time
	latestSuccessful    actionqueue.PendingAction
	hasLatestSuccessful bool

	originalWaitTimes map[uint32]time.Duration

	rttStats     *stats.Window
	latencyStats *stats.Window
}

// NewTimeline returns a Timeline backed by the given rolling statistics
// windows. Passing the same windows into multiple Timelines would mix
// their connections' samples; callers should give each connection its own
// pair.
func NewTimeline(rttStats, latencyStats *stats.Window) *Timeline {
	return &Timeline{
		originalWaitTimes: make(map[uint32]time.Duration),
		rttStats:          rttStats,
		latencyStats:      latencyStats,
	}
}

// RecordOriginalWaitTime stashes the high-precision animation-lock
// duration carried by a sideband message for later lookup by sequence.
func (t *Timeline) RecordOriginalWaitTime(sourceSequence uint32, wait time.Duration) {
	t.originalWaitTimes[sourceSequence] = wait
}

// TakeOriginalWaitTime returns, and forgets, the sideband wait time
// recorded for sourceSequence. When none was recorded it returns fallback,
// which callers derive from the action-effect frame's own (lower
// precision) duration field.
func (t *Timeline) TakeOriginalWaitTime(sourceSequence uint32, fallback time.Duration) time.Duration {
	if wait, ok := t.originalWaitTimes[sourceSequence]; ok {
		delete(t.originalWaitTimes, sourceSequence)
		return wait
	}
	return fallback
}

// LockEndsAt returns the current animation-lock cursor.
func (t *Timeline) LockEndsAt() time.Time {
	return t.lockEndsAt
}

// LatestSuccessful returns the most recent pending action the timeline has
// adopted as its reference point, and whether one has been recorded yet.
func (t *Timeline) LatestSuccessful() (actionqueue.PendingAction, bool) {
	return t.latestSuccessful, t.hasLatestSuccessful
}

// SetLatestSuccessful replaces the reference pending action.
func (t *Timeline) SetLatestSuccessful(p actionqueue.PendingAction) {
	t.latestSuccessful = p
	t.hasLatestSuccessful = true
}

// OnActionRequestQueued updates the lock cursor when a freshly queued
// request is the only one pending: if no lock is currently running and
// nothing else is outstanding, the cursor resets to now so the next
// response's extra delay is measured from the moment the player acted.
func (t *Timeline) OnActionRequestQueued(now time.Time, pendingCountAfterPush int) {
	if now.Before(t.lockEndsAt) {
		return
	}
	if pendingCountAfterPush == 1 {
		t.lockEndsAt = now
	}
}

// ApplyServerOriginatedEffect handles an action-effect frame whose source
// sequence is zero: an effect the server generated on its own (typically
// an auto-attack), not in response to a queued client request. When the
// previous reference action is still mid-lock and was not itself a cast,
// the new effect's lock folds onto the existing one instead of resetting
// it, with an auto-attack floor applied. applied is false when there is no
// eligible reference action, in which case the caller must leave the
// frame's duration untouched.
func (t *Timeline) ApplyServerOriginatedEffect(now time.Time, actionID uint32, originalWaitTime time.Duration) (waitTime time.Duration, applied bool) {
	if !t.hasLatestSuccessful || t.latestSuccessful.CastFlag || t.latestSuccessful.Sequence == 0 {
		return 0, false
	}
	if !t.lockEndsAt.After(now) {
		return 0, false
	}

	// The original formula adds two absolute timestamps together
	// (originalWaitTime+now) and subtracts another pair
	// (latestSuccessful.OriginalWaitTime+latestSuccessful.ResponseTime);
	// time.Time cannot be summed directly, so this is the algebraically
	// equivalent regrouping: duration delta plus timestamp delta.
	delta := (originalWaitTime - t.latestSuccessful.OriginalWaitTime) + now.Sub(t.latestSuccessful.ResponseTime)
	t.lockEndsAt = t.lockEndsAt.Add(delta)

	if floor := now.Add(AutoAttackDelay); t.lockEndsAt.Before(floor) {
		t.lockEndsAt = floor
	}

	t.latestSuccessful.ActionID = actionID
	t.latestSuccessful.Sequence = 0

	return t.lockEndsAt.Sub(now), true
}

// ApplyInstantActionEffect handles an action-effect frame matched to front,
// the oldest pending action, when front was not a cast. It folds the
// server-reported wait time plus an estimated extra delay onto the lock
// cursor and records rtt/latency samples into the rolling windows. The
// returned PendingAction is front updated with its response time and
// resolved wait time; the caller is responsible for storing it as the new
// latest-successful reference.
func (t *Timeline) ApplyInstantActionEffect(now time.Time, front actionqueue.PendingAction, originalWaitTime time.Duration, cfg EstimatorConfig) (waitTime time.Duration, updated actionqueue.PendingAction) {
	rtt := now.Sub(front.RequestTime)
	t.rttStats.Add(float64(rtt))
	if cfg.NetworkLatencyAvailable {
		t.latencyStats.Add(float64(cfg.NetworkLatency))
	}

	delay := estimateDelay(rtt, originalWaitTime, t.snapshot(t.rttStats), t.snapshot(t.latencyStats), cfg)

	front.ResponseTime = now
	front.OriginalWaitTime = originalWaitTime

	t.lockEndsAt = t.lockEndsAt.Add(originalWaitTime + delay)
	return t.lockEndsAt.Sub(now), front
}

func (t *Timeline) snapshot(w *stats.Window) snapshot {
	min, _ := w.Min()
	mean, _ := w.Mean()
	dev, _ := w.Deviation()
	return snapshot{
		min:       time.Duration(min),
		mean:      time.Duration(mean),
		deviation: time.Duration(dev),
	}
}
