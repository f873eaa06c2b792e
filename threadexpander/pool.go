package threadexpander

import (
	"sync"

	"github.com/kdevan/gchat-bridge/domain"
)

// replyJob is one topic awaiting its full reply list (§4.7): the topic
// itself plus its slot in the caller's result slice, so workers can write
// expanded results back without racing on a shared index.
type replyJob struct {
	index int
	topic domain.Topic
}

// replyPool is the Thread Expander's bounded-parallelism primitive: a fixed
// number of goroutines drain a shared queue of replyJob fetches, each
// invoking the pool's fetch callback. It is the same fixed-worker-count,
// buffered-channel, close-and-wait shape a generic worker pool would use,
// narrowed to this package's own job type instead of a bare func() so the
// pool can't be submitted work that isn't a topic reply fetch.
type replyPool struct {
	workerCount int
	jobQueue    chan replyJob
	wg          sync.WaitGroup
}

// newReplyPool creates a replyPool with workerCount goroutines ready to
// receive jobs. The queue buffers up to workerCount*4 pending fetches before
// submit blocks, mirroring the burst buffer a page of topics needs without
// unbounded growth.
func newReplyPool(workerCount int) *replyPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &replyPool{
		workerCount: workerCount,
		jobQueue:    make(chan replyJob, workerCount*4),
	}
}

// start launches the worker goroutines, each calling fetch for every job it
// drains. It must be called exactly once before any job is submitted.
func (p *replyPool) start(fetch func(replyJob)) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobQueue {
				fetch(job)
			}
		}()
	}
}

// submit enqueues job for fetch by one of the pool's goroutines, blocking if
// the buffer is full. submit must not be called after stop.
func (p *replyPool) submit(job replyJob) {
	p.jobQueue <- job
}

// stop signals the pool to finish all queued jobs and waits for every
// worker goroutine to exit. No new job may be submitted after stop.
func (p *replyPool) stop() {
	close(p.jobQueue)
	p.wg.Wait()
}
