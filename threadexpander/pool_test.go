package threadexpander

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kdevan/gchat-bridge/domain"
)

func TestReplyPool_FetchesEveryJob(t *testing.T) {
	const n = 50
	pool := newReplyPool(4)

	var wg sync.WaitGroup
	var seen int32
	pool.start(func(job replyJob) {
		defer wg.Done()
		atomic.AddInt32(&seen, 1)
	})

	for i := 0; i < n; i++ {
		wg.Add(1)
		pool.submit(replyJob{index: i, topic: domain.Topic{TopicID: "t"}})
	}
	wg.Wait()
	pool.stop()

	if int(seen) != n {
		t.Errorf("expected %d jobs fetched, got %d", n, seen)
	}
}

func TestReplyPool_ZeroWorkersFallsBackToOne(t *testing.T) {
	pool := newReplyPool(0)
	var wg sync.WaitGroup
	var ran int32
	pool.start(func(job replyJob) {
		defer wg.Done()
		atomic.AddInt32(&ran, 1)
	})
	wg.Add(1)
	pool.submit(replyJob{index: 0, topic: domain.Topic{TopicID: "t"}})
	wg.Wait()
	pool.stop()

	if ran != 1 {
		t.Errorf("expected job to run, ran=%d", ran)
	}
}
