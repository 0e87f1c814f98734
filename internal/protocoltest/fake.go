// Package protocoltest provides a minimal Frame implementation for tests
// across this module, playing the role the collaborator's real decoder
// plays in production.
package protocoltest

import "github.com/example/anilock/internal/protocol"

// Frame is a mutable, in-memory protocol.Frame used by tests to drive the
// handler without a real wire decoder.
type Frame struct {
	SegmentV SegmentOverride
	IPCTypeV protocol.IPCType
	SubType  uint16

	CurrentActorV uint64
	SourceActorV  uint64

	Request  *protocol.ActionRequest
	Effect   *protocol.ActionEffect
	Sideband *protocol.CustomOriginalWaitTime
	Self     *protocol.ActorControlSelf
	Control  *protocol.ActorControl
	Cast     *protocol.ActorCast
}

// SegmentOverride lets callers opt out of the SegmentIPC default.
type SegmentOverride int

const (
	// SegmentDefault resolves to protocol.SegmentIPC.
	SegmentDefault SegmentOverride = iota
	SegmentNonIPC
)

// NewActionRequest builds a Frame carrying a C2S action request.
func NewActionRequest(subType uint16, currentActor, sourceActor uint64, actionID, sequence uint32) *Frame {
	return &Frame{
		SubType:       subType,
		CurrentActorV: currentActor,
		SourceActorV:  sourceActor,
		Request:       &protocol.ActionRequest{ActionID: actionID, Sequence: sequence},
	}
}

// NewActionEffect builds a Frame carrying an S2C action effect.
func NewActionEffect(subType uint16, currentActor, sourceActor uint64, sourceSequence, actionID uint32, lockSeconds float32) *Frame {
	return &Frame{
		SubType:       subType,
		CurrentActorV: currentActor,
		SourceActorV:  sourceActor,
		Effect: &protocol.ActionEffect{
			SourceSequence:        sourceSequence,
			ActionID:              actionID,
			AnimationLockDuration: lockSeconds,
		},
	}
}

// NewSideband builds a Frame carrying the handler-private original wait
// time sideband message.
func NewSideband(subType uint16, sourceSequence uint32, originalWaitSeconds float32) *Frame {
	return &Frame{
		SubType:  subType,
		IPCTypeV: protocol.IPCCustom,
		Sideband: &protocol.CustomOriginalWaitTime{SourceSequence: sourceSequence, OriginalWaitTime: originalWaitSeconds},
	}
}

// NewActionRejected builds a Frame carrying an ActorControlSelf rejection.
func NewActionRejected(subType uint16, currentActor, sourceActor uint64, sourceSequence, actionID uint32) *Frame {
	return &Frame{
		SubType:       subType,
		CurrentActorV: currentActor,
		SourceActorV:  sourceActor,
		Self: &protocol.ActorControlSelf{
			Category: protocol.ActionRejected,
			Rollback: protocol.Rollback{SourceSequence: sourceSequence, ActionID: actionID},
		},
	}
}

// NewCancelCast builds a Frame carrying an ActorControl cancel-cast event.
func NewCancelCast(subType uint16, currentActor, sourceActor uint64, actionID uint32) *Frame {
	return &Frame{
		SubType:       subType,
		CurrentActorV: currentActor,
		SourceActorV:  sourceActor,
		Control: &protocol.ActorControl{
			Category:   protocol.CancelCast,
			CancelCast: protocol.CancelCastPayload{ActionID: actionID},
		},
	}
}

// NewActorCast builds a Frame carrying an S2C actor-cast announcement.
func NewActorCast(subType uint16, currentActor, sourceActor uint64, actionID uint32, castTime float32, targetID uint64) *Frame {
	return &Frame{
		SubType:       subType,
		CurrentActorV: currentActor,
		SourceActorV:  sourceActor,
		Cast:          &protocol.ActorCast{ActionID: actionID, CastTime: castTime, TargetID: targetID},
	}
}

func (f *Frame) Segment() protocol.SegmentType {
	if f.SegmentV == SegmentNonIPC {
		return protocol.SegmentOther
	}
	return protocol.SegmentIPC
}

func (f *Frame) IPCType() protocol.IPCType   { return f.IPCTypeV }
func (f *Frame) IPCSubType() uint16          { return f.SubType }
func (f *Frame) CurrentActor() uint64        { return f.CurrentActorV }
func (f *Frame) SourceActor() uint64         { return f.SourceActorV }

func (f *Frame) ActionRequest() (protocol.ActionRequest, bool) {
	if f.Request == nil {
		return protocol.ActionRequest{}, false
	}
	return *f.Request, true
}

func (f *Frame) ActionEffect() (protocol.ActionEffect, bool) {
	if f.Effect == nil {
		return protocol.ActionEffect{}, false
	}
	return *f.Effect, true
}

func (f *Frame) RewriteAnimationLockDuration(seconds float64) {
	if f.Effect == nil {
		return
	}
	f.Effect.AnimationLockDuration = float32(seconds)
}

func (f *Frame) CustomOriginalWaitTime() (protocol.CustomOriginalWaitTime, bool) {
	if f.Sideband == nil {
		return protocol.CustomOriginalWaitTime{}, false
	}
	return *f.Sideband, true
}

func (f *Frame) ActorControlSelf() (protocol.ActorControlSelf, bool) {
	if f.Self == nil {
		return protocol.ActorControlSelf{}, false
	}
	return *f.Self, true
}

func (f *Frame) ActorControl() (protocol.ActorControl, bool) {
	if f.Control == nil {
		return protocol.ActorControl{}, false
	}
	return *f.Control, true
}

func (f *Frame) ActorCast() (protocol.ActorCast, bool) {
	if f.Cast == nil {
		return protocol.ActorCast{}, false
	}
	return *f.Cast, true
}

var _ protocol.Frame = (*Frame)(nil)
