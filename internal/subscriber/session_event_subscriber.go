package subscriber

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/eventbus"
	"github.com/specbuilder/backend/internal/service/orchestrator"
)

// regenerationQueue 后台文档重新生成队列
type regenerationQueue interface {
	Enqueue(job *orchestrator.Job) error
	CancelSession(sessionID string) bool
}

// scheduler 延迟调度器
type scheduler interface {
	Schedule(key string, fn func())
	Cancel(key string) bool
}

// SessionEventSubscriber 消息变化后延迟触发文档重新生成，重置或删除时取消
type SessionEventSubscriber struct {
	scheduler scheduler
	queue     regenerationQueue
	timeout   time.Duration

	mu        sync.Mutex
	scheduled map[string]int64
}

func NewSessionEventSubscriber(scheduler scheduler, queue regenerationQueue, timeout time.Duration) *SessionEventSubscriber {
	return &SessionEventSubscriber{
		scheduler: scheduler,
		queue:     queue,
		timeout:   timeout,
		scheduled: make(map[string]int64),
	}
}

func (s *SessionEventSubscriber) Register(bus *eventbus.SessionEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.SessionEventMessageAdded, s.handleMessageAdded)
	bus.Subscribe(eventbus.SessionEventMessageEdited, s.handleMessageEdited)
	bus.Subscribe(eventbus.SessionEventReset, s.handleStop)
	bus.Subscribe(eventbus.SessionEventDeleted, s.handleStop)
	bus.Subscribe(eventbus.SessionEventPhaseChanged, s.handlePhaseChanged)
	bus.Subscribe(eventbus.SessionEventDocumentUpdated, s.handleDocumentUpdated)
}

// handleMessageAdded 消息历史版本与上次调度时相同则不重复调度
func (s *SessionEventSubscriber) handleMessageAdded(ctx context.Context, event eventbus.SessionEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("会话ID为空")
	}
	s.schedule(event)
	return nil
}

// handleMessageEdited 编辑后正在运行的生成基于旧对话，先取消再重新调度
func (s *SessionEventSubscriber) handleMessageEdited(ctx context.Context, event eventbus.SessionEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("会话ID为空")
	}
	running := s.queue.CancelSession(event.SessionID)
	klog.V(6).Infof("[SessionEventSubscriber] 消息已编辑: sessionID=%s, revision=%d, running=%t", event.SessionID, event.Revision, running)
	s.schedule(event)
	return nil
}

func (s *SessionEventSubscriber) schedule(event eventbus.SessionEvent) {
	s.mu.Lock()
	last, ok := s.scheduled[event.SessionID]
	if ok && last == event.Revision {
		s.mu.Unlock()
		return
	}
	s.scheduled[event.SessionID] = event.Revision
	s.mu.Unlock()

	sessionID := event.SessionID
	s.scheduler.Schedule(sessionID, func() {
		if err := s.queue.Enqueue(orchestrator.NewJob(sessionID, false, s.timeout)); err != nil {
			klog.Errorf("[SessionEventSubscriber] 文档生成任务入队失败: sessionID=%s, error=%v", sessionID, err)
		}
	})
	klog.V(6).Infof("[SessionEventSubscriber] 已调度文档生成: sessionID=%s, messages=%d, revision=%d", sessionID, event.MessageCount, event.Revision)
}

func (s *SessionEventSubscriber) handleStop(ctx context.Context, event eventbus.SessionEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("会话ID为空")
	}
	s.mu.Lock()
	delete(s.scheduled, event.SessionID)
	s.mu.Unlock()

	pending := s.scheduler.Cancel(event.SessionID)
	running := s.queue.CancelSession(event.SessionID)
	klog.V(6).Infof("[SessionEventSubscriber] 已取消文档生成: type=%s, sessionID=%s, pending=%t, running=%t",
		event.Type, event.SessionID, pending, running)
	return nil
}

func (s *SessionEventSubscriber) handlePhaseChanged(ctx context.Context, event eventbus.SessionEvent) error {
	klog.V(6).Infof("[SessionEventSubscriber] 阶段变更: sessionID=%s, %d -> %d", event.SessionID, event.PreviousPhase, event.Phase)
	return nil
}

func (s *SessionEventSubscriber) handleDocumentUpdated(ctx context.Context, event eventbus.SessionEvent) error {
	klog.V(6).Infof("[SessionEventSubscriber] 文档已更新: sessionID=%s, version=%d, sections=%v", event.SessionID, event.Version, event.Fields)
	return nil
}
