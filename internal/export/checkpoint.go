package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neudinger/acctmigrate/internal/artifact"
	"github.com/neudinger/acctmigrate/internal/domain"
)

var (
	// ErrCheckpointNotFound is returned when no checkpoint exists at the URI.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrEmptyCheckpoint is returned when a checkpoint holds no records.
	ErrEmptyCheckpoint = errors.New("checkpoint contains no records")
)

// Artifacts stores checkpoint bytes. *artifact.Store satisfies it.
type Artifacts interface {
	Read(ctx context.Context, uri string) ([]byte, error)
	Write(ctx context.Context, uri string, data []byte) error
}

func isYAML(uri string) bool {
	ext := artifact.Ext(uri)
	return ext == ".yaml" || ext == ".yml"
}

// WriteCheckpoint persists records at uri as YAML (.yaml/.yml) or JSON.
func WriteCheckpoint(ctx context.Context, store Artifacts, uri string, records []domain.AccountRecord) error {
	if records == nil {
		records = []domain.AccountRecord{}
	}

	var (
		data []byte
		err  error
	)
	if isYAML(uri) {
		data, err = yaml.Marshal(records)
	} else {
		data, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := store.Write(ctx, uri, data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint loads the records saved by WriteCheckpoint and normalizes
// them. A missing or empty checkpoint is an error.
func ReadCheckpoint(ctx context.Context, store Artifacts, uri string) ([]domain.AccountRecord, error) {
	data, err := store.Read(ctx, uri)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", uri, ErrCheckpointNotFound)
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var records []domain.AccountRecord
	if isYAML(uri) {
		err = yaml.Unmarshal(data, &records)
	} else {
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", uri, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", uri, ErrEmptyCheckpoint)
	}

	for i := range records {
		records[i] = domain.NormalizeRecord(records[i])
	}
	return records, nil
}

var referenceHeader = []string{"UID", "Email", "Display Name", "Email Verified", "Created"}

// WriteReferenceCSV writes a human-readable listing of records.
func WriteReferenceCSV(w io.Writer, records []domain.AccountRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(referenceHeader); err != nil {
		return err
	}
	for _, r := range records {
		created := ""
		if r.CreatedAt != nil {
			created = r.CreatedAt.UTC().Format(time.RFC3339)
		}
		row := []string{r.ExternalID, r.Email, r.DisplayName, strconv.FormatBool(r.EmailVerified), created}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
