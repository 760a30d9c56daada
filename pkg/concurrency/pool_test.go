package concurrency

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrader/pkg/logging"
)

func newPool(t *testing.T, workers int) *WorkerPool {
	t.Helper()
	logger, err := logging.NewLoggerFromString("error")
	require.NoError(t, err)
	return NewWorkerPool(PoolConfig{Name: "accounts", MaxWorkers: workers}, logger)
}

func TestStopWaitsForSubmittedSessions(t *testing.T) {
	pool := newPool(t, 2)

	var ran atomic.Int64
	for i := 0; i < 4; i++ {
		pool.Submit(func() { ran.Add(1) })
	}
	pool.Stop()

	assert.Equal(t, int64(4), ran.Load())
}

func TestPanicInOneSessionDoesNotStopSiblings(t *testing.T) {
	pool := newPool(t, 1)

	var survived atomic.Bool
	pool.Submit(func() { panic("session blew up") })
	pool.Submit(func() { survived.Store(true) })
	pool.Stop()

	assert.True(t, survived.Load())
}
