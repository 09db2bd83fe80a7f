// Package orchestrator 在协程池中执行文档重新生成任务，负责排队、重试与取消。
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// Job 一次文档重新生成任务
type Job struct {
	SessionID  string
	Force      bool
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
	Timeout    time.Duration
}

// Executor 任务执行者
type Executor interface {
	ExecuteRegeneration(ctx context.Context, sessionID string, force bool) error
}

// PermanentError 包装不需要重试的错误
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent 标记错误不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

var (
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
	ErrQueueFull           = errors.New("job queue is full")
)

const (
	defaultMaxRetries = 2
	defaultTimeout    = 2 * time.Minute
	maxBackoff        = 30 * time.Second
)

// NewJob 创建重新生成任务
func NewJob(sessionID string, force bool, timeout time.Duration) *Job {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Job{
		SessionID:  sessionID,
		Force:      force,
		EnqueuedAt: time.Now(),
		MaxRetries: defaultMaxRetries,
		Timeout:    timeout,
	}
}

type Orchestrator struct {
	jobQueue    *jobQueue
	retryQueue  *jobQueue
	retryTicker *time.Ticker

	pool *ants.Pool

	executor Executor
	// backoff 第 i 次重试前等待 backoff << i
	backoff time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	activeCancellations map[string]activeJob
	cancelMutex         sync.Mutex
	runSeq              uint64
}

type activeJob struct {
	seq    uint64
	cancel context.CancelFunc
}

func NewOrchestrator(maxWorkers int, executor Executor) (*Orchestrator, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(100),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		cancel()
		klog.Errorf("[Orchestrator] 协程池初始化失败: %v", err)
		return nil, err
	}

	return &Orchestrator{
		jobQueue:            newJobQueue(120),
		retryQueue:          newJobQueue(120),
		retryTicker:         time.NewTicker(500 * time.Millisecond),
		pool:                pool,
		executor:            executor,
		backoff:             time.Second,
		activeCancellations: make(map[string]activeJob),
		ctx:                 ctx,
		cancel:              cancel,
	}, nil
}

func (o *Orchestrator) Start() {
	go o.dispatchLoop()
	go o.processRetryQueue()
}

// Stop 停止接收新任务，等待运行中的任务结束
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		klog.V(6).Infof("[Orchestrator] stopping...")

		o.cancel()
		o.jobQueue.Close()
		o.retryQueue.Close()

		if running := o.pool.Running(); running > 0 {
			klog.V(6).Infof("[Orchestrator] 等待 %d 个运行中的任务结束", running)
		}
		if err := o.pool.ReleaseTimeout(10 * time.Second); err != nil {
			klog.Warningf("[Orchestrator] 等待任务结束超时: %v", err)
		}
		klog.V(6).Infof("[Orchestrator] stopped")
	})
}

// Enqueue 任务入队
func (o *Orchestrator) Enqueue(job *Job) error {
	select {
	case <-o.ctx.Done():
		return ErrOrchestratorStopped
	default:
	}

	if err := o.jobQueue.Enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("[Orchestrator] 队列已满: sessionID=%s", job.SessionID)
		}
		return err
	}
	klog.V(6).Infof("[Orchestrator] 任务入队: sessionID=%s, force=%t", job.SessionID, job.Force)
	return nil
}

// registerCancel 同一会话只保留最新的任务，旧任务被取消
func (o *Orchestrator) registerCancel(sessionID string, cancel context.CancelFunc) uint64 {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	if prev, ok := o.activeCancellations[sessionID]; ok {
		prev.cancel()
	}
	o.runSeq++
	o.activeCancellations[sessionID] = activeJob{seq: o.runSeq, cancel: cancel}
	return o.runSeq
}

func (o *Orchestrator) unregisterCancel(sessionID string, seq uint64) {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	if cur, ok := o.activeCancellations[sessionID]; ok && cur.seq == seq {
		delete(o.activeCancellations, sessionID)
	}
}

// CancelSession 取消会话正在执行的任务，返回是否存在该任务
func (o *Orchestrator) CancelSession(sessionID string) bool {
	o.cancelMutex.Lock()
	active, ok := o.activeCancellations[sessionID]
	delete(o.activeCancellations, sessionID)
	o.cancelMutex.Unlock()
	if !ok {
		return false
	}
	klog.V(6).Infof("[Orchestrator] 取消任务: sessionID=%s", sessionID)
	active.cancel()
	return true
}

func (o *Orchestrator) dispatchLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		default:
			job, ok := o.jobQueue.Dequeue()
			if !ok {
				continue
			}
			o.tryDispatch(job)
		}
	}
}

func (o *Orchestrator) processRetryQueue() {
	defer o.retryTicker.Stop()
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[Orchestrator] retry loop panic recovered: %v", r)
		}
	}()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.retryTicker.C:
			for range 10 {
				job, ok := o.retryQueue.TryDequeue()
				if !ok {
					break
				}
				o.tryDispatch(job)
			}
		}
	}
}

// tryDispatch 只负责把任务提交到协程池；提交失败时进入重试队列
func (o *Orchestrator) tryDispatch(job *Job) {
	if job.MaxRetries <= 0 || job.RetryCount >= job.MaxRetries {
		klog.Warningf("[Orchestrator] 重试已达上限，放弃: sessionID=%s, retry=%d/%d", job.SessionID, job.RetryCount, job.MaxRetries)
		return
	}
	err := o.pool.Submit(func() {
		o.executeJob(job)
	})
	if err == nil {
		return
	}
	klog.Errorf("[Orchestrator] 提交任务到协程池失败: sessionID=%s, err=%v", job.SessionID, err)

	job.RetryCount++
	if err := o.retryQueue.Enqueue(job); err != nil {
		klog.Errorf("[Orchestrator] 重试入队失败: sessionID=%s, err=%v", job.SessionID, err)
	}
}

// executeJob 执行任务并按退避重试，PermanentError 与取消不重试
func (o *Orchestrator) executeJob(job *Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()
	runCtx, manualCancel := context.WithCancel(ctx)
	defer manualCancel()

	seq := o.registerCancel(job.SessionID, manualCancel)
	defer o.unregisterCancel(job.SessionID, seq)

	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[Orchestrator] task panic recovered: sessionID=%s, err=%v", job.SessionID, r)
		}
	}()

	for i := job.RetryCount; i < job.MaxRetries; i++ {
		job.RetryCount = i

		err := o.executor.ExecuteRegeneration(runCtx, job.SessionID, job.Force)
		if err == nil {
			klog.V(6).Infof("[Orchestrator] 任务完成: sessionID=%s", job.SessionID)
			return
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			klog.V(6).Infof("[Orchestrator] 任务放弃: sessionID=%s, err=%v", job.SessionID, err)
			return
		}

		backoff := o.backoff << i
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		klog.Warningf("[Orchestrator] 任务失败: sessionID=%s, retry=%d/%d, err=%v, backoff=%v",
			job.SessionID, i+1, job.MaxRetries, err, backoff)

		select {
		case <-runCtx.Done():
			klog.Warningf("[Orchestrator] 任务被取消或超时: sessionID=%s", job.SessionID)
			return
		case <-time.After(backoff):
		}
	}

	klog.Errorf("[Orchestrator] 任务失败且超过重试上限: sessionID=%s", job.SessionID)
}

type QueueStatus struct {
	QueueLength   int `json:"queueLength"`
	RetryLength   int `json:"retryLength"`
	ActiveWorkers int `json:"activeWorkers"`
}

func (o *Orchestrator) Status() *QueueStatus {
	return &QueueStatus{
		QueueLength:   o.jobQueue.Len(),
		RetryLength:   o.retryQueue.Len(),
		ActiveWorkers: o.pool.Running(),
	}
}

// jobQueue 有界队列，满时拒绝新任务
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, maxSize),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrOrchestratorStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

// Dequeue 阻塞直到有任务或队列关闭
func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.pop()
}

// TryDequeue 不阻塞
func (q *jobQueue) TryDequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.pop()
}

func (q *jobQueue) pop() (*Job, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *jobQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}
