package scheduler

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/duedate"
)

type scannerMock struct {
	mu       sync.Mutex
	runs     int
	err      error
	deadline bool
}

func (s *scannerMock) Run(ctx context.Context) (duedate.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	_, s.deadline = ctx.Deadline()
	return duedate.ScanResult{Ledgers: 1}, s.err
}

type loggerMock struct {
	core.Logger
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *loggerMock) Info(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *loggerMock) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func newConfig(spec string) *core.Config {
	return &core.Config{Scheduler: core.SchedulerConfig{DueDateSpec: spec, LockTTL: time.Minute}}
}

func TestNew_invalidSpec(t *testing.T) {
	_, err := New(newConfig("every monday"), new(scannerMock), log.New(io.Discard, "", 0), new(loggerMock))
	assert.Error(t, err)
}

func TestScheduler_runScan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantInfos  int
		wantErrors int
	}{
		{name: "completed", wantInfos: 1},
		{name: "skipped", err: duedate.ErrScanInProgress, wantInfos: 1},
		{name: "failed", err: assert.AnError, wantErrors: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := &scannerMock{err: tt.err}
			logger := new(loggerMock)
			s, err := New(newConfig("0 * * * *"), scanner, log.New(io.Discard, "", 0), logger)
			require.NoError(t, err)

			s.runScan()
			assert.Equal(t, 1, scanner.runs)
			assert.True(t, scanner.deadline, "scans are bounded by the lock TTL")
			assert.Len(t, logger.infos, tt.wantInfos)
			assert.Len(t, logger.errors, tt.wantErrors)
		})
	}
}

func TestScheduler_lifecycle(t *testing.T) {
	s, err := New(newConfig("*/5 * * * *"), new(scannerMock), log.New(io.Discard, "", 0), new(loggerMock))
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	s.Start()
	next := s.Next()
	assert.False(t, next.IsZero())
	assert.Zero(t, next.Minute()%5)
	assert.True(t, next.After(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
