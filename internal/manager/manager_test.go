package manager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etl-pipeline-manager/internal/executor"
	"etl-pipeline-manager/internal/gateway"
	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "manager.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newManager(t *testing.T) (*Manager, *gateway.MemoryConnector) {
	t.Helper()
	m := New(newTestStore(t), nil, time.Minute)
	t.Cleanup(m.Close)

	mem := gateway.NewMemoryConnector()
	m.Gateway().Register(model.SourceTypeMemory, mem)
	return m, mem
}

func mustSource(t *testing.T, m *Manager, name string) *model.DataSource {
	t.Helper()
	ds, err := m.CreateDataSource(&model.DataSource{Name: name, Type: model.SourceTypeMemory, Enabled: true})
	require.NoError(t, err)
	return ds
}

func mustJob(t *testing.T, m *Manager, src, dst string, ruleIDs ...string) *model.Job {
	t.Helper()
	job, err := m.CreateJob(&model.Job{
		Name: "orders", Enabled: true,
		SourceIDs: []string{src}, DestinationIDs: []string{dst}, RuleIDs: ruleIDs,
	})
	require.NoError(t, err)
	return job
}

func TestCreateJobValidatesReferences(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.CreateJob(&model.Job{Name: "orphan", SourceIDs: []string{"nope"}, DestinationIDs: []string{"nope"}})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = m.CreateJob(&model.Job{Name: "empty"})
	assert.Error(t, err)

	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	job := mustJob(t, m, src.ID, dst.ID)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusIdle, job.Status)
}

func TestDeleteGuards(t *testing.T) {
	m, _ := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")

	rule, err := m.CreateRule(&model.TransformationRule{
		Name: "keep-all", Type: model.RuleTypeFilter, Enabled: true,
		Filter: &model.FilterConfig{Logic: "or", Conditions: []model.Condition{
			{Field: "id", Operator: model.OpIsNotNull},
		}},
	})
	require.NoError(t, err)

	job := mustJob(t, m, src.ID, dst.ID, rule.ID)

	assert.ErrorIs(t, m.DeleteDataSource(src.ID), ErrReferenced)
	assert.ErrorIs(t, m.DeleteRule(rule.ID), ErrReferenced)

	require.NoError(t, m.DeleteJob(job.ID))
	assert.NoError(t, m.DeleteDataSource(src.ID))
	assert.NoError(t, m.DeleteRule(rule.ID))
}

func TestRuleValidation(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.CreateRule(&model.TransformationRule{Name: "bad", Type: model.RuleTypeFilter})
	assert.Error(t, err, "filter rule without filter config")

	_, err = m.CreateRule(&model.TransformationRule{Name: "bad", Type: model.RuleTypeCustom, Custom: &model.CustomConfig{}})
	assert.Error(t, err, "custom rule without function name")
}

func TestExecuteJobUpdatesStatus(t *testing.T) {
	m, mem := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	mem.Seed(src.ID, []model.Record{{"id": 1}, {"id": 2}})

	job := mustJob(t, m, src.ID, dst.ID)

	run, err := m.ExecuteJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, run.Status)
	assert.Len(t, mem.Sink(dst.ID), 2)

	got, err := m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, got.Status)
	require.NotNil(t, got.LastRunAt)

	runs, err := m.Runs(job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestUpdateJobRejectedWhileRunning(t *testing.T) {
	m, mem := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	mem.Seed(src.ID, []model.Record{{"id": 1}})

	entered := make(chan struct{})
	release := make(chan struct{})
	m.Registry().RegisterTransform("block", func(ctx context.Context, recs []model.Record, params map[string]interface{}) ([]model.Record, error) {
		close(entered)
		<-release
		return recs, nil
	})
	rule, err := m.CreateRule(&model.TransformationRule{
		Name: "block", Type: model.RuleTypeCustom, Enabled: true,
		Custom: &model.CustomConfig{Function: "block"},
	})
	require.NoError(t, err)

	job := mustJob(t, m, src.ID, dst.ID, rule.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.ExecuteJob(context.Background(), job.ID)
		assert.NoError(t, err)
	}()

	<-entered
	_, err = m.UpdateJob(job)
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.ErrorIs(t, m.DeleteJob(job.ID), ErrJobRunning)

	close(release)
	<-done

	_, err = m.UpdateJob(job)
	assert.NoError(t, err)
}

func TestConcurrentExecuteKeepsRunOwnership(t *testing.T) {
	m, mem := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	mem.Seed(src.ID, []model.Record{{"id": 1}})

	entered := make(chan struct{})
	m.Registry().RegisterTransform("hold", func(ctx context.Context, recs []model.Record, params map[string]interface{}) ([]model.Record, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rule, err := m.CreateRule(&model.TransformationRule{
		Name: "hold", Type: model.RuleTypeCustom, Enabled: true,
		Custom: &model.CustomConfig{Function: "hold"},
	})
	require.NoError(t, err)

	job := mustJob(t, m, src.ID, dst.ID, rule.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		run, err := m.ExecuteJob(context.Background(), job.ID)
		assert.NoError(t, err)
		assert.Equal(t, model.RunStatusCancelled, run.Status)
	}()

	<-entered
	_, err = m.ExecuteJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, executor.ErrAlreadyRunning)

	// the rejected call must not disturb the in-flight run's state
	got, err := m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)
	assert.True(t, m.CancelJob(job.ID), "in-flight run keeps its cancel handle")

	<-done
	got, err = m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, got.Status)
}

func TestCancelJob(t *testing.T) {
	m, mem := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	mem.Seed(src.ID, []model.Record{{"id": 1}})

	started := make(chan struct{})
	m.Registry().RegisterTransform("wait", func(ctx context.Context, recs []model.Record, params map[string]interface{}) ([]model.Record, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rule, err := m.CreateRule(&model.TransformationRule{
		Name: "wait", Type: model.RuleTypeCustom, Enabled: true,
		Custom: &model.CustomConfig{Function: "wait"},
	})
	require.NoError(t, err)

	job := mustJob(t, m, src.ID, dst.ID, rule.ID)

	runCh := make(chan *model.Run)
	go func() {
		run, err := m.ExecuteJob(context.Background(), job.ID)
		assert.NoError(t, err)
		runCh <- run
	}()

	<-started
	assert.True(t, m.CancelJob(job.ID))

	run := <-runCh
	assert.Equal(t, model.RunStatusCancelled, run.Status)

	got, err := m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, got.Status)

	assert.False(t, m.CancelJob(job.ID), "no run left to cancel")
}

func TestScheduleLifecycle(t *testing.T) {
	m, mem := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	mem.Seed(src.ID, []model.Record{{"id": 1}})

	job, err := m.CreateJob(&model.Job{
		Name: "nightly", Enabled: true,
		SourceIDs: []string{src.ID}, DestinationIDs: []string{dst.ID},
		Schedule: &model.Schedule{Frequency: model.FrequencyDaily, Hour: 2, Minute: 30},
	})
	require.NoError(t, err)

	next, err := m.ScheduleJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 30, next.Minute())

	got, err := m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusScheduled, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(next))

	require.NoError(t, m.UnscheduleJob(job.ID))
	got, err = m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusIdle, got.Status)
	assert.Nil(t, got.NextRunAt)
}

func TestDisableJobDropsSchedule(t *testing.T) {
	m, _ := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")

	job, err := m.CreateJob(&model.Job{
		Name: "nightly", Enabled: true,
		SourceIDs: []string{src.ID}, DestinationIDs: []string{dst.ID},
		Schedule: &model.Schedule{Frequency: model.FrequencyDaily, Hour: 2},
	})
	require.NoError(t, err)
	_, err = m.ScheduleJob(job.ID)
	require.NoError(t, err)

	got, err := m.SetJobEnabled(job.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, model.JobStatusIdle, got.Status)
	assert.Nil(t, got.NextRunAt)
	_, armed := m.scheduler.NextFire(job.ID)
	assert.False(t, armed)

	_, err = m.ScheduleJob(job.ID)
	assert.Error(t, err, "disabled job cannot be scheduled")

	got, err = m.SetJobEnabled(job.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	_, err = m.ScheduleJob(job.ID)
	assert.NoError(t, err)
}

func TestScheduleJobWithoutSchedule(t *testing.T) {
	m, _ := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	job := mustJob(t, m, src.ID, dst.ID)

	_, err := m.ScheduleJob(job.ID)
	assert.Error(t, err)
}

func TestResumeSchedules(t *testing.T) {
	s := newTestStore(t)

	m := New(s, nil, time.Minute)
	src, err := m.CreateDataSource(&model.DataSource{Name: "src", Type: model.SourceTypeMemory, Enabled: true})
	require.NoError(t, err)
	dst, err := m.CreateDataSource(&model.DataSource{Name: "dst", Type: model.SourceTypeMemory, Enabled: true})
	require.NoError(t, err)
	job, err := m.CreateJob(&model.Job{
		Name: "nightly", Enabled: true,
		SourceIDs: []string{src.ID}, DestinationIDs: []string{dst.ID},
		Schedule: &model.Schedule{Frequency: model.FrequencyDaily, Hour: 2},
	})
	require.NoError(t, err)
	_, err = m.ScheduleJob(job.ID)
	require.NoError(t, err)
	m.Close()

	// a fresh process re-arms jobs persisted in the scheduled state
	restarted := New(s, nil, time.Minute)
	t.Cleanup(restarted.Close)
	restarted.ResumeSchedules()

	got, err := restarted.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusScheduled, got.Status)
	require.NotNil(t, got.NextRunAt)

	_, armed := restarted.scheduler.NextFire(job.ID)
	assert.True(t, armed)
}

func TestAuditAlertsOnMutations(t *testing.T) {
	m, _ := newManager(t)
	src := mustSource(t, m, "src")
	dst := mustSource(t, m, "dst")
	mustJob(t, m, src.ID, dst.ID)

	alerts, err := m.Alerts().Alerts(store.AlertFilter{Category: model.CategorySystem})
	require.NoError(t, err)
	assert.Len(t, alerts, 3, "one audit alert per created entity")
	for _, a := range alerts {
		assert.Equal(t, model.SeverityInfo, a.Severity)
	}
}
