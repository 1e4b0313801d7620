package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
)

// SaveJob inserts or replaces a job. Status and derived times are stored in
// their own columns so they can be updated without rewriting the spec blob.
func (s *Store) SaveJob(j *model.Job) error {
	spec, err := json.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "marshal job spec")
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO jobs (id, spec, status, last_run_at, next_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, spec, string(j.Status), j.LastRunAt, j.NextRunAt, j.CreatedAt, j.UpdatedAt)
	return errors.Wrap(err, "save job")
}

// GetJob fetches one job by id
func (s *Store) GetJob(id string) (*model.Job, error) {
	row := s.db.QueryRow(`SELECT spec, status, last_run_at, next_run_at FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns all jobs ordered by creation time
func (s *Store) ListJobs() ([]*model.Job, error) {
	rows, err := s.db.Query(`SELECT spec, status, last_run_at, next_run_at FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus updates the status column (and spec copy) of a job
func (s *Store) UpdateJobStatus(id string, status model.JobStatus) error {
	j, err := s.GetJob(id)
	if err != nil {
		return err
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return s.SaveJob(j)
}

// DeleteJob removes a job row
func (s *Store) DeleteJob(id string) error {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete job")
	}
	return affected(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var spec string
	var status string
	var lastRunAt, nextRunAt sql.NullTime
	if err := row.Scan(&spec, &status, &lastRunAt, &nextRunAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "scan job")
	}

	var j model.Job
	if err := json.Unmarshal([]byte(spec), &j); err != nil {
		return nil, errors.Wrap(err, "unmarshal job spec")
	}
	j.Status = model.JobStatus(status)
	j.LastRunAt, j.NextRunAt = nil, nil
	if lastRunAt.Valid {
		t := lastRunAt.Time
		j.LastRunAt = &t
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time
		j.NextRunAt = &t
	}
	return &j, nil
}

// SaveDataSource inserts or replaces a data source
func (s *Store) SaveDataSource(ds *model.DataSource) error {
	spec, err := json.Marshal(ds)
	if err != nil {
		return errors.Wrap(err, "marshal data source spec")
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO data_sources (id, spec, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		ds.ID, spec, ds.CreatedAt, ds.UpdatedAt)
	return errors.Wrap(err, "save data source")
}

// GetDataSource fetches one data source by id
func (s *Store) GetDataSource(id string) (*model.DataSource, error) {
	var spec string
	err := s.db.QueryRow(`SELECT spec FROM data_sources WHERE id = ?`, id).Scan(&spec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get data source")
	}
	var ds model.DataSource
	if err := json.Unmarshal([]byte(spec), &ds); err != nil {
		return nil, errors.Wrap(err, "unmarshal data source spec")
	}
	return &ds, nil
}

// ListDataSources returns all data sources ordered by creation time
func (s *Store) ListDataSources() ([]*model.DataSource, error) {
	rows, err := s.db.Query(`SELECT spec FROM data_sources ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "list data sources")
	}
	defer rows.Close()

	var sources []*model.DataSource
	for rows.Next() {
		var spec string
		if err := rows.Scan(&spec); err != nil {
			return nil, errors.Wrap(err, "scan data source")
		}
		var ds model.DataSource
		if err := json.Unmarshal([]byte(spec), &ds); err != nil {
			return nil, errors.Wrap(err, "unmarshal data source spec")
		}
		sources = append(sources, &ds)
	}
	return sources, rows.Err()
}

// DeleteDataSource removes a data source row
func (s *Store) DeleteDataSource(id string) error {
	res, err := s.db.Exec(`DELETE FROM data_sources WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete data source")
	}
	return affected(res)
}

// SaveRule inserts or replaces a transformation rule
func (s *Store) SaveRule(r *model.TransformationRule) error {
	spec, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal rule spec")
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO transformation_rules (id, spec, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		r.ID, spec, r.CreatedAt, r.UpdatedAt)
	return errors.Wrap(err, "save rule")
}

// GetRule fetches one transformation rule by id
func (s *Store) GetRule(id string) (*model.TransformationRule, error) {
	var spec string
	err := s.db.QueryRow(`SELECT spec FROM transformation_rules WHERE id = ?`, id).Scan(&spec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get rule")
	}
	var r model.TransformationRule
	if err := json.Unmarshal([]byte(spec), &r); err != nil {
		return nil, errors.Wrap(err, "unmarshal rule spec")
	}
	return &r, nil
}

// ListRules returns all transformation rules ordered by their display order
func (s *Store) ListRules() ([]*model.TransformationRule, error) {
	rows, err := s.db.Query(`SELECT spec FROM transformation_rules ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	defer rows.Close()

	var rules []*model.TransformationRule
	for rows.Next() {
		var spec string
		if err := rows.Scan(&spec); err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}
		var r model.TransformationRule
		if err := json.Unmarshal([]byte(spec), &r); err != nil {
			return nil, errors.Wrap(err, "unmarshal rule spec")
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// DeleteRule removes a transformation rule row
func (s *Store) DeleteRule(id string) error {
	res, err := s.db.Exec(`DELETE FROM transformation_rules WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete rule")
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
