package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolClosed 池已关闭
var ErrPoolClosed = errors.New("worker pool is closed")

// ErrQueueFull 队列已满
var ErrQueueFull = errors.New("worker pool queue is full")

// Task 任务函数，ctx 在池关闭时取消
type Task func(ctx context.Context)

// Pool 固定数量 worker 消费有界队列
// STOMP 应用命令在这里执行，读循环不会被慢命令阻塞
type Pool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New 创建并启动 Worker Pool
// workers: worker 数量
// queueSize: 任务队列大小
func New(workers int, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		workers:   workers,
		taskQueue: make(chan Task, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started",
		"workers", workers,
		"queue_size", queueSize)

	return pool
}

// worker 消费队列直到队列关闭，关闭后剩余任务仍会执行完
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panic recovered",
				"worker_id", id,
				"panic", r)
		}
	}()
	task(p.ctx)
}

// Submit 提交任务，队列满时阻塞直到有空位、ctx 取消或池关闭
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// TrySubmit 尝试提交任务，队列满时立即返回 ErrQueueFull
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending 队列中等待的任务数
func (p *Pool) Pending() int {
	return len(p.taskQueue)
}

// Shutdown 停止接收任务并等待已入队任务完成
// ctx 到期后取消任务 ctx 并返回 ctx.Err()，worker 仍会在后台退出
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool shutdown completed")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("Worker pool shutdown timed out", "pending", len(p.taskQueue))
		return ctx.Err()
	}
}
