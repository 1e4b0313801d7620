package store

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
)

// AlertFilter narrows GetAlerts. Zero values mean "no constraint".
type AlertFilter struct {
	State    model.AlertState
	Category model.AlertCategory
	Severity model.Severity
	JobID    string
	Limit    uint64
}

// InsertAlert appends an alert
func (s *Store) InsertAlert(a *model.Alert) error {
	_, err := s.db.Exec(
		`INSERT INTO alerts (id, severity, category, state, title, message, job_id, run_id, silenced_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Severity), string(a.Category), string(a.State), a.Title, a.Message,
		a.JobID, a.RunID, a.SilencedUntil, a.CreatedAt, a.UpdatedAt)
	return errors.Wrap(err, "insert alert")
}

// UpdateAlertState transitions an alert's state
func (s *Store) UpdateAlertState(id string, state model.AlertState, silencedUntil *time.Time, updatedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE alerts SET state = ?, silenced_until = ?, updated_at = ? WHERE id = ?`,
		string(state), silencedUntil, updatedAt, id)
	if err != nil {
		return errors.Wrap(err, "update alert state")
	}
	return affected(res)
}

// GetAlert fetches one alert by id
func (s *Store) GetAlert(id string) (*model.Alert, error) {
	row := s.db.QueryRow(
		`SELECT id, severity, category, state, title, message, job_id, run_id, silenced_until, created_at, updated_at
		 FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

// GetAlerts returns alerts matching the filter, newest first
func (s *Store) GetAlerts(f AlertFilter) ([]*model.Alert, error) {
	q := sq.Select("id", "severity", "category", "state", "title", "message",
		"job_id", "run_id", "silenced_until", "created_at", "updated_at").
		From("alerts").
		OrderBy("created_at DESC")
	if f.State != "" {
		q = q.Where(sq.Eq{"state": string(f.State)})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": string(f.Category)})
	}
	if f.Severity != "" {
		q = q.Where(sq.Eq{"severity": string(f.Severity)})
	}
	if f.JobID != "" {
		q = q.Where(sq.Eq{"job_id": f.JobID})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build alerts query")
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query alerts")
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ExpiredSilences returns silenced alerts whose silence window has elapsed
func (s *Store) ExpiredSilences(now time.Time) ([]*model.Alert, error) {
	query, args, err := sq.Select("id", "severity", "category", "state", "title", "message",
		"job_id", "run_id", "silenced_until", "created_at", "updated_at").
		From("alerts").
		Where(sq.Eq{"state": string(model.AlertStateSilenced)}).
		Where(sq.LtOrEq{"silenced_until": now}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build expired silences query")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query expired silences")
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var severity, category, state string
	var message, jobID, runID sql.NullString
	var silencedUntil sql.NullTime

	err := row.Scan(&a.ID, &severity, &category, &state, &a.Title, &message,
		&jobID, &runID, &silencedUntil, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan alert")
	}

	a.Severity = model.Severity(severity)
	a.Category = model.AlertCategory(category)
	a.State = model.AlertState(state)
	a.Message = message.String
	a.JobID = jobID.String
	a.RunID = runID.String
	if silencedUntil.Valid {
		t := silencedUntil.Time
		a.SilencedUntil = &t
	}
	return &a, nil
}
