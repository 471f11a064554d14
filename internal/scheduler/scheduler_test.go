package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/events"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func TestAddJobInvalidSchedule(t *testing.T) {
	s := New(nil, zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{name: "noop"})
	assert.Error(t, err)
}

func TestAddJobValidSchedule(t *testing.T) {
	s := New(nil, zerolog.Nop())
	err := s.AddJob("@every 1h", &countingJob{name: "noop"})
	assert.NoError(t, err)
}

func TestRunNowEmitsLifecycleEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	var started, completed int
	bus.Subscribe(events.JobStarted, func(e *events.Event) { started++ })
	bus.Subscribe(events.JobCompleted, func(e *events.Event) { completed++ })

	s := New(manager, zerolog.Nop())
	job := &countingJob{name: "warm"}

	require.NoError(t, s.RunNow(job))

	assert.Equal(t, 1, job.runs)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, completed)
}

func TestRunNowReportsFailure(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	var failed int
	var failure *events.JobStatusData
	bus.Subscribe(events.JobFailed, func(e *events.Event) {
		failed++
		failure = e.Data.(*events.JobStatusData)
	})

	s := New(manager, zerolog.Nop())
	job := &countingJob{name: "broken", err: errors.New("disk full")}

	err := s.RunNow(job)
	assert.Error(t, err)
	assert.Equal(t, 1, failed)
	require.NotNil(t, failure)
	assert.Equal(t, "broken", failure.JobType)
	assert.Equal(t, "disk full", failure.Error)
}

func TestStartStop(t *testing.T) {
	s := New(nil, zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "noop"}))

	assert.NotPanics(t, func() {
		s.Start()
		s.Stop()
	})
}
