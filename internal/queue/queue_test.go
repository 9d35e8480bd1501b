package queue

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestJobsReportErrors(t *testing.T) {
	rqm := NewRequestQueueManager(4, 2, zerolog.Nop())
	defer rqm.Shutdown()

	boom := errors.New("boom")
	errc := make(chan error, 1)
	rqm.EnqueueJob(Job{Fn: func() error { return boom }, Errc: errc})
	assert.ErrorIs(t, <-errc, boom)

	rqm.EnqueueJob(Job{Fn: func() error { return nil }, Errc: errc})
	assert.NoError(t, <-errc)
}

func TestShutdownDrainsQueue(t *testing.T) {
	rqm := NewRequestQueueManager(16, 0, zerolog.Nop())
	assert.Equal(t, 1, rqm.MaxWorkers)

	var ran int32
	for i := 0; i < 10; i++ {
		rqm.EnqueueJob(Job{Fn: func() error {
			atomic.AddInt32(&ran, 1)
			return nil
		}})
	}

	rqm.Shutdown()
	rqm.Shutdown()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))
}
