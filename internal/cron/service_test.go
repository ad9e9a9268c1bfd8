package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	held     bool
	releases int
	extends  int
	stolen   bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Extend(context.Context) error {
	f.extends++
	if f.stolen {
		return ErrLeaseLost
	}
	return nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
	run  func(ctx context.Context) error
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.run != nil {
		return t.run(ctx)
	}
	return t.err
}

// counterValue sums the series of name, restricted to one outcome when
// outcome is non-empty.
func counterValue(t *testing.T, reg *prometheus.Registry, name, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if outcome == "" || hasOutcome(m, outcome) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasOutcome(m *dto.Metric, outcome string) bool {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == "outcome" {
			return pair.GetValue() == outcome
		}
	}
	return false
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := &testJob{name: "success"}
	bad := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(ok, bad),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.ErrorContains(t, err, "fail: boom")
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, bad.runs)
	require.Equal(t, 1, lock.releases)
	require.Equal(t, float64(1), counterValue(t, reg, "captures_cron_runs_total", metrics.OutcomeOK))
	require.Equal(t, float64(1), counterValue(t, reg, "captures_cron_runs_total", metrics.OutcomeFailed))
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &testJob{name: "export"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Zero(t, job.runs)
	require.Equal(t, float64(1), counterValue(t, reg, "captures_cron_cycles_skipped_total", ""))
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "export"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, service.Run(ctx), context.Canceled)
	require.Equal(t, defaultInterval, service.interval)
	require.Zero(t, job.runs)
}

func TestServiceIsolatesPanickingJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	panicky := &testJob{name: "panicky", run: func(context.Context) error { panic("nil map") }}
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(panicky, after),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.ErrorContains(t, err, "panicky: panic: nil map")
	require.Equal(t, 1, after.runs)
	require.Equal(t, 1, lock.releases)
	require.Equal(t, float64(1), counterValue(t, reg, "captures_cron_runs_total", metrics.OutcomeFailed))
}

func TestServiceStopsWhenLeaseIsLost(t *testing.T) {
	lock := &fakeLock{}
	first := &testJob{name: "first", run: func(context.Context) error {
		lock.stolen = true
		return nil
	}}
	second := &testJob{name: "second"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second),
		Lock:     lock,
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrLeaseLost)
	require.Equal(t, 1, first.runs)
	require.Zero(t, second.runs)
	require.Equal(t, 1, lock.extends)
	require.Equal(t, 1, lock.releases)
}

func TestServiceAppliesJobTimeout(t *testing.T) {
	slow := &testJob{name: "slow", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	service, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Registry:   NewRegistry(slow),
		Lock:       &fakeLock{},
		JobTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.ErrorIs(t, service.RunOnce(context.Background()), context.DeadlineExceeded)
}
