package distributor

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// workerPool runs at most size tasks at once.
type workerPool struct {
	sem *semaphore.Weighted
	wg  *sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{sem: semaphore.NewWeighted(int64(size)), wg: &sync.WaitGroup{}}
}

// TryGo starts the task, if there is a free worker.
func (p *workerPool) TryGo(task func()) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		task()
	}()
	return true
}

// Wait for all running tasks.
func (p *workerPool) Wait() {
	p.wg.Wait()
}
