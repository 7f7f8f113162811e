package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	apperr "github.com/fundergrid/research-service/pkg/errors"
	"github.com/fundergrid/research-service/pkg/postgres"
)

// Source supplies the record snapshot the store is built from. Load is
// called exactly once, at service start.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// MemorySource serves a pre-supplied in-memory slice, used as-is.
type MemorySource struct {
	Records []Record
}

func (s MemorySource) Load(ctx context.Context) ([]Record, error) {
	return s.Records, nil
}

// FileSource reads a JSON array of records from disk. A missing file is
// fatal when FailOnMissing is set and yields an empty collection otherwise;
// malformed content (invalid JSON or a non-array top level) is always fatal.
type FileSource struct {
	Path          string
	FailOnMissing bool
	Logger        *slog.Logger
}

func (s FileSource) Load(ctx context.Context) ([]Record, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default().With("component", "record-source")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if s.FailOnMissing {
				return nil, fmt.Errorf("records file %s: %w", s.Path, err)
			}
			log.Warn("records file missing, starting empty", "path", s.Path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading records file %s: %w", s.Path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, apperr.Newf(apperr.ErrParse, "records file %s is not a JSON array of records: %v", s.Path, err)
	}
	log.Info("records loaded from file", "path", s.Path, "count", len(records))
	return records, nil
}

// PostgresSource reads the record snapshot from a table with id, title, text,
// and metadata (JSON) columns. Rows are ordered by id so the traversal order
// is deterministic across restarts.
type PostgresSource struct {
	Client *postgres.Client
	Table  string
	Logger *slog.Logger
}

func (s PostgresSource) Load(ctx context.Context) ([]Record, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default().With("component", "record-source")
	}

	query := fmt.Sprintf(
		`SELECT id, COALESCE(title, ''), COALESCE(text, ''), COALESCE(metadata, '{}') FROM %s ORDER BY id`,
		s.Table,
	)
	rows, err := s.Client.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying records from %s: %w", s.Table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			rawMeta []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Text, &rawMeta); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &rec.Metadata); err != nil {
				return nil, apperr.Newf(apperr.ErrParse, "record %s has malformed metadata: %v", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record rows: %w", err)
	}
	log.Info("records loaded from postgres", "table", s.Table, "count", len(records))
	return records, nil
}
