package queue

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager bounds how many handlers run at once. Every HTTP
// request is enqueued as a Job and its error is sent back on Errc.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int
	wg         sync.WaitGroup
	once       sync.Once
}

func NewRequestQueueManager(queueSize int, maxWorkers int) *RequestQueueManager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			log.Debug().Int("worker", workerID).Msg("queue worker started")
			for job := range rqm.JobQueue {
				err := runJob(job)
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			log.Debug().Int("worker", workerID).Msg("queue worker stopped")
		}(i)
	}
}

// Run executes job on the calling goroutine with the same panic recovery
// the workers apply.
func Run(job Job) error {
	return runJob(job)
}

// runJob keeps a panicking handler from taking the worker down with it.
func runJob(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("queue job panicked")
			err = fmt.Errorf("queue job panicked: %v", r)
		}
	}()
	return job.Fn()
}

func (rqm *RequestQueueManager) EnqueueJob(job Job) {
	rqm.JobQueue <- job
}

func (rqm *RequestQueueManager) Shutdown() {
	rqm.once.Do(func() {
		close(rqm.JobQueue)
	})
	rqm.wg.Wait()
}
