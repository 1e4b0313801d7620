package store

import (
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
)

// RunFilter narrows GetRuns. Zero values mean "no constraint".
type RunFilter struct {
	JobID  string
	Status model.RunStatus
	Limit  uint64
}

// InsertRun appends a new run to the history
func (s *Store) InsertRun(r *model.Run) error {
	counts, log, errs, err := marshalRunBlobs(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (id, job_id, status, start_time, end_time, counts, log, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobID, string(r.Status), r.StartTime, r.EndTime, counts, log, errs)
	return errors.Wrap(err, "insert run")
}

// UpdateRun rewrites a run row in place, used by the tracker until finalize
func (s *Store) UpdateRun(r *model.Run) error {
	counts, log, errs, err := marshalRunBlobs(r)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, end_time = ?, counts = ?, log = ?, errors = ? WHERE id = ?`,
		string(r.Status), r.EndTime, counts, log, errs, r.ID)
	if err != nil {
		return errors.Wrap(err, "update run")
	}
	return affected(res)
}

// GetRun fetches one run by id
func (s *Store) GetRun(id string) (*model.Run, error) {
	row := s.db.QueryRow(`SELECT id, job_id, status, start_time, end_time, counts, log, errors FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// GetRuns returns runs matching the filter, newest first
func (s *Store) GetRuns(f RunFilter) ([]*model.Run, error) {
	q := sq.Select("id", "job_id", "status", "start_time", "end_time", "counts", "log", "errors").
		From("runs").
		OrderBy("start_time DESC")
	if f.JobID != "" {
		q = q.Where(sq.Eq{"job_id": f.JobID})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build runs query")
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func marshalRunBlobs(r *model.Run) (counts, log, errs []byte, err error) {
	if counts, err = json.Marshal(r.Counts); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal counts")
	}
	if log, err = json.Marshal(r.Log); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal log")
	}
	if errs, err = json.Marshal(r.Errors); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal errors")
	}
	return counts, log, errs, nil
}

func scanRun(row rowScanner) (*model.Run, error) {
	var r model.Run
	var status string
	var endTime sql.NullTime
	var counts, logBlob, errBlob []byte

	if err := row.Scan(&r.ID, &r.JobID, &status, &r.StartTime, &endTime, &counts, &logBlob, &errBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "scan run")
	}

	r.Status = model.RunStatus(status)
	if endTime.Valid {
		t := endTime.Time
		r.EndTime = &t
	}
	if err := json.Unmarshal(counts, &r.Counts); err != nil {
		return nil, errors.Wrap(err, "unmarshal counts")
	}
	if len(logBlob) > 0 {
		if err := json.Unmarshal(logBlob, &r.Log); err != nil {
			return nil, errors.Wrap(err, "unmarshal log")
		}
	}
	if len(errBlob) > 0 {
		if err := json.Unmarshal(errBlob, &r.Errors); err != nil {
			return nil, errors.Wrap(err, "unmarshal errors")
		}
	}
	return &r, nil
}

// PruneRuns deletes finished runs older than the cutoff, returning how many
// rows were removed. Retention policy is driven externally.
func (s *Store) PruneRuns(before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM runs WHERE end_time IS NOT NULL AND end_time < ?`, before)
	if err != nil {
		return 0, errors.Wrap(err, "prune runs")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "rows affected")
}
