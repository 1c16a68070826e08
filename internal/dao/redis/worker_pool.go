package redis

import (
	"sync"

	"go.uber.org/zap"
)

// workerPool 固定数量的后台协程消费缓存任务
type workerPool struct {
	tasks     chan func()
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newWorkerPool(workerNum, bufferSize int) *workerPool {
	p := &workerPool{tasks: make(chan func(), bufferSize)}
	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.startWorker()
	}
	zap.L().Info("cache workers started", zap.Int("workers", workerNum), zap.Int("buffer", bufferSize))
	return p
}

func (p *workerPool) startWorker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run 单个任务 panic 不影响 worker 继续消费
func (p *workerPool) run(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("cache task panic", zap.Any("recover", rec))
		}
	}()
	if task != nil {
		task()
	}
}

// submit 队列满时降级为同步执行
func (p *workerPool) submit(task func()) {
	select {
	case p.tasks <- task:
	default:
		zap.L().Warn("cache task channel full, executing synchronously")
		p.run(task)
	}
}

// close 停止接收并等待已提交的任务执行完
func (p *workerPool) close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
