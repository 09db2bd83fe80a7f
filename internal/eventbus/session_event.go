package eventbus

import (
	"context"

	"github.com/specbuilder/backend/internal/model"
)

type SessionEventType string

const (
	SessionEventMessageAdded    SessionEventType = "MessageAdded"
	SessionEventMessageEdited   SessionEventType = "MessageEdited"
	SessionEventPhaseChanged    SessionEventType = "PhaseChanged"
	SessionEventSpecUpdated     SessionEventType = "SpecUpdated"
	SessionEventReset           SessionEventType = "SessionReset"
	SessionEventDocumentUpdated SessionEventType = "DocumentUpdated"
	SessionEventDeleted         SessionEventType = "SessionDeleted"
)

// SessionEvent 会话状态变更事件
// MessageCount、Revision 为事件发生时的消息条数与消息历史版本；Phase 仅在阶段相关事件中有效
type SessionEvent struct {
	Type          SessionEventType
	SessionID     string
	MessageCount  int
	Revision      int64
	PreviousPhase model.Phase
	Phase         model.Phase
	Fields        []string
	Version       int
}

type SessionEventHandler = Handler[SessionEvent]
type SessionEventBus = Bus[SessionEventType, SessionEvent]

func NewSessionEventBus() *SessionEventBus {
	return NewBus[SessionEventType, SessionEvent]()
}

// Emit 以事件自身的 Type 发布
func Emit(ctx context.Context, bus *SessionEventBus, event SessionEvent) error {
	if bus == nil {
		return nil
	}
	return bus.Publish(ctx, event.Type, event)
}
