package alert

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/store"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func finishedRun(status model.RunStatus, loaded int, duration time.Duration) *model.Run {
	start := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	end := start.Add(duration)
	return &model.Run{
		ID: "run-1", JobID: "j-1", Status: status,
		StartTime: start, EndTime: &end,
		Counts: model.RecordCounts{Loaded: loaded},
	}
}

func TestFailedRunAlwaysYieldsJobFailureAlert(t *testing.T) {
	m := newManager(t)
	job := &model.Job{ID: "j-1", Name: "import"}

	created := m.EvaluateRun(finishedRun(model.RunStatusFailed, 500, time.Minute), job)

	var failure *model.Alert
	for _, a := range created {
		if a.Category == model.CategoryJobFailure {
			failure = a
		}
	}
	require.NotNil(t, failure)
	assert.Equal(t, model.SeverityError, failure.Severity)
	assert.Equal(t, model.AlertStateActive, failure.State)
	assert.Equal(t, "run-1", failure.RunID)
}

func TestLowRecordCountYieldsWarning(t *testing.T) {
	m := newManager(t)
	job := &model.Job{ID: "j-1", Name: "import"}

	created := m.EvaluateRun(finishedRun(model.RunStatusSucceeded, 50, time.Minute), job)
	require.Len(t, created, 1, "only the record-count rule matches")
	assert.Equal(t, model.CategoryDataQuality, created[0].Category)
	assert.Equal(t, model.SeverityWarning, created[0].Severity)
}

func TestDurationThreshold(t *testing.T) {
	m := newManager(t)
	job := &model.Job{ID: "j-1", Name: "import"}

	created := m.EvaluateRun(finishedRun(model.RunStatusSucceeded, 500, 45*time.Minute), job)
	require.Len(t, created, 1)
	assert.Equal(t, model.CategoryPerformance, created[0].Category)

	// under the threshold no alert is created
	created = m.EvaluateRun(finishedRun(model.RunStatusSucceeded, 500, 5*time.Minute), job)
	assert.Empty(t, created)
}

func TestJobScopedRule(t *testing.T) {
	m := newManager(t)
	m.SetRules([]model.AlertRule{{
		ID: "scoped", Type: model.AlertRuleRecordCount, Enabled: true,
		Severity: model.SeverityWarning, MinRecords: 100, JobID: "other-job",
	}})

	created := m.EvaluateRun(finishedRun(model.RunStatusSucceeded, 10, time.Minute), &model.Job{ID: "j-1", Name: "import"})
	assert.Empty(t, created, "rule scoped to another job does not match")
}

func TestDisabledRuleSkipped(t *testing.T) {
	m := newManager(t)
	m.SetRules([]model.AlertRule{{
		ID: "off", Type: model.AlertRuleJobFailure, Enabled: false, Severity: model.SeverityError,
	}})

	created := m.EvaluateRun(finishedRun(model.RunStatusFailed, 500, time.Minute), &model.Job{ID: "j-1", Name: "import"})
	assert.Empty(t, created)
}

func TestSilenceAndSweep(t *testing.T) {
	m := newManager(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	a, err := m.EvaluateSystemEvent(model.SystemEvent{
		Category: model.CategoryConnectivity, Severity: model.SeverityError,
		Title: "source unreachable",
	})
	require.NoError(t, err)

	require.NoError(t, m.Silence(a.ID, 10))
	got, err := m.store.GetAlert(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateSilenced, got.State)
	require.NotNil(t, got.SilencedUntil)

	// sweep before expiry changes nothing
	now = now.Add(5 * time.Minute)
	n, err := m.ClearExpiredSilences()
	require.NoError(t, err)
	assert.Zero(t, n)

	// sweep after expiry reverts to active with a fresh updatedAt
	now = now.Add(6 * time.Minute)
	n, err = m.ClearExpiredSilences()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = m.store.GetAlert(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateActive, got.State)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestAcknowledgeAndResolve(t *testing.T) {
	m := newManager(t)

	a, err := m.EvaluateSystemEvent(model.SystemEvent{
		Category: model.CategorySystem, Severity: model.SeverityInfo, Title: "note",
	})
	require.NoError(t, err)

	require.NoError(t, m.Acknowledge(a.ID))
	got, err := m.store.GetAlert(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateAcknowledged, got.State)

	require.NoError(t, m.Resolve(a.ID))
	got, err = m.store.GetAlert(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateResolved, got.State)

	assert.ErrorIs(t, m.Acknowledge("missing"), store.ErrNotFound)
}

func TestRaiseScheduleMissed(t *testing.T) {
	m := newManager(t)
	job := &model.Job{ID: "j-1", Name: "import"}

	a, err := m.RaiseScheduleMissed(job, time.Now(), "executor hand-off failed")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryScheduleMissed, a.Category)
	assert.Equal(t, model.SeverityWarning, a.Severity)

	alerts, err := m.Alerts(store.AlertFilter{Category: model.CategoryScheduleMissed})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}
