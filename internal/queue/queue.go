package queue

import (
	"sync"

	"github.com/rs/zerolog"
)

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager runs HTTP handlers on a fixed pool of workers so a
// burst of widget traffic queues instead of fanning out unbounded.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int
	log        zerolog.Logger
	wg         sync.WaitGroup
	once       sync.Once
}

func NewRequestQueueManager(queueSize int, maxWorkers int, logger zerolog.Logger) *RequestQueueManager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		log:        logger.With().Str("component", "queue").Logger(),
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			rqm.log.Debug().Int("worker", workerID).Msg("worker started")
			for job := range rqm.JobQueue {
				err := job.Fn()
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			rqm.log.Debug().Int("worker", workerID).Msg("worker stopped")
		}(i)
	}
}

func (rqm *RequestQueueManager) EnqueueJob(job Job) {
	rqm.JobQueue <- job
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (rqm *RequestQueueManager) Shutdown() {
	rqm.once.Do(func() {
		close(rqm.JobQueue)
	})
	rqm.wg.Wait()
}
