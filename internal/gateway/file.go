package gateway

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/pkg/utils"
)

// FileConnector reads and writes CSV or JSON files on the local filesystem.
// Config keys: "path" (required), "format" ("csv" or "json", inferred from
// the extension when absent).
type FileConnector struct{}

// NewFileConnector returns the file connector
func NewFileConnector() *FileConnector { return &FileConnector{} }

func filePath(ds model.DataSource) (string, error) {
	p, _ := ds.Config["path"].(string)
	if p == "" {
		return "", errors.Errorf("data source %s has no path configured", ds.Name)
	}
	return p, nil
}

func fileFormat(ds model.DataSource, path string) string {
	if f, _ := ds.Config["format"].(string); f != "" {
		return strings.ToLower(f)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "csv"
}

func (f *FileConnector) Extract(ctx context.Context, ds model.DataSource) ([]model.Record, error) {
	path, err := filePath(ds)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open source file")
	}
	defer file.Close()

	switch fileFormat(ds, path) {
	case "json":
		return readJSON(file)
	case "csv":
		return readCSV(ctx, file)
	default:
		return nil, errors.Errorf("unknown file format for %s", ds.Name)
	}
}

func (f *FileConnector) Load(ctx context.Context, ds model.DataSource, recs []model.Record) (int, error) {
	path, err := filePath(ds)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(err, "create destination file")
	}
	defer file.Close()

	switch fileFormat(ds, path) {
	case "json":
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		if err := enc.Encode(recs); err != nil {
			return 0, errors.Wrap(err, "write json records")
		}
	case "csv":
		if err := writeCSV(file, recs); err != nil {
			return 0, err
		}
	default:
		return 0, errors.Errorf("unknown file format for %s", ds.Name)
	}
	return len(recs), nil
}

func (f *FileConnector) TestConnection(ctx context.Context, ds model.DataSource) (model.ConnectionStatus, error) {
	path, err := filePath(ds)
	if err != nil {
		return model.ConnectionStatus{}, err
	}
	if _, err := os.Stat(path); err != nil {
		// a missing file is fine for a destination as long as the directory exists
		if _, derr := os.Stat(filepath.Dir(path)); derr != nil {
			return model.ConnectionStatus{Success: false, Message: derr.Error()}, nil
		}
	}
	return model.ConnectionStatus{Success: true, Message: "file reachable"}, nil
}

func readCSV(ctx context.Context, r io.Reader) ([]model.Record, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read csv header")
	}
	for i, h := range headers {
		headers[i] = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
	}

	var recs []model.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "read csv row")
		}
		rec := make(model.Record, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = utils.ParseValue(row[i])
			}
		}
		recs = append(recs, rec)
	}
}

func readJSON(r io.Reader) ([]model.Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read json file")
	}

	var list []model.Record
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	// a single object counts as one record
	var one model.Record
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, errors.Wrap(err, "decode json records")
	}
	return []model.Record{one}, nil
}

// writeCSV emits the union of all record fields as columns, sorted for a
// stable header.
func writeCSV(w io.Writer, recs []model.Record) error {
	fields := map[string]bool{}
	for _, rec := range recs {
		for k := range rec {
			fields[k] = true
		}
	}
	headers := make([]string, 0, len(fields))
	for k := range fields {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	row := make([]string, len(headers))
	for _, rec := range recs {
		for i, h := range headers {
			if v, ok := rec[h]; ok {
				row[i] = utils.Stringify(v)
			} else {
				row[i] = ""
			}
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flush csv")
}
