package docstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// FailureRecord is one entry of the failure log.
type FailureRecord struct {
	FilePath     string    `json:"file_path"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
}

func (d *DocStore) failuresPath() string {
	return filepath.Join(d.Root, "failed_files.json")
}

// AppendFailure adds one record to failed_files.json, creating it on first
// use. A zero timestamp is filled with the current time.
func (d *DocStore) AppendFailure(rec FailureRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	records, err := d.Failures()
	if err != nil {
		return err
	}
	records = append(records, rec)

	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.failuresPath(), buf, 0o644)
}

// Failures reads the failure log; a missing file is an empty log.
func (d *DocStore) Failures() ([]FailureRecord, error) {
	buf, err := os.ReadFile(d.failuresPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []FailureRecord
	if err := json.Unmarshal(buf, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ClearFailures removes the failure log.
func (d *DocStore) ClearFailures() error {
	err := os.Remove(d.failuresPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
