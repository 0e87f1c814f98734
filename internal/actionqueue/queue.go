// Package actionqueue tracks outstanding client action requests until the
// server response that corresponds to each one arrives, so the latency
// mitigation core can correlate an incoming animation-lock duration back
// to the request that triggered it.
package actionqueue

import "time"

// PendingAction is one outgoing action request awaiting a server response.
type PendingAction struct {
	ActionID         uint32
	Sequence         uint32
	RequestTime      time.Time
	ResponseTime     time.Time
	CastFlag         bool
	OriginalWaitTime time.Duration
}

// Queue is an ordered, FIFO record of pending actions. The game server is
// assumed to answer requests in the order they were sent, so every drop
// operation below discards from the front until a match is found. The zero
// value is ready to use.
type Queue struct {
	items []PendingAction
}

// Push appends a new pending action to the back of the queue.
func (q *Queue) Push(action PendingAction) {
	q.items = append(q.items, action)
}

// Len reports how many actions are currently pending.
func (q *Queue) Len() int {
	return len(q.items)
}

// Front returns the oldest pending action. ok is false when the queue is
// empty.
func (q *Queue) Front() (PendingAction, bool) {
	if len(q.items) == 0 {
		return PendingAction{}, false
	}
	return q.items[0], true
}

// PopFront removes the oldest pending action, if any.
func (q *Queue) PopFront() {
	if len(q.items) == 0 {
		return
	}
	q.items = q.items[1:]
}

// MarkFrontCast flags the oldest pending action as a cast, so that a later
// action-effect response for it is treated as the tail of a cast rather
// than an instant action.
func (q *Queue) MarkFrontCast() {
	if len(q.items) == 0 {
		return
	}
	q.items[0].CastFlag = true
}

// DropUntilSequence discards entries from the front whose Sequence does
// not match target, stopping once a match is found or the queue empties.
// It returns every entry it discarded, in discard order, for diagnostic
// logging.
func (q *Queue) DropUntilSequence(target uint32) []PendingAction {
	return q.dropWhile(func(p PendingAction) bool { return p.Sequence != target })
}

// DropUntilActionID discards entries from the front whose ActionID does
// not match target, stopping once a match is found or the queue empties.
func (q *Queue) DropUntilActionID(target uint32) []PendingAction {
	return q.dropWhile(func(p PendingAction) bool { return p.ActionID != target })
}

// DropUntilRejected discards entries from the front that do not match the
// server's rollback identification of a rejected action. The server
// identifies the rejected request by sequence when available, falling
// back to action id when it reports a zero sequence.
func (q *Queue) DropUntilRejected(sourceSequence, actionID uint32) []PendingAction {
	return q.dropWhile(func(p PendingAction) bool {
		if sourceSequence != 0 {
			return p.Sequence != sourceSequence
		}
		return p.ActionID != actionID
	})
}

func (q *Queue) dropWhile(mismatch func(PendingAction) bool) []PendingAction {
	var dropped []PendingAction
	for len(q.items) > 0 && mismatch(q.items[0]) {
		dropped = append(dropped, q.items[0])
		q.items = q.items[1:]
	}
	return dropped
}
