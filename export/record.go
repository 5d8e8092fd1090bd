// Package export serializes finished runs to JSON files and SQLite databases.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/GoCodeAlone/bookstore/config"
	"github.com/GoCodeAlone/bookstore/scheduler"
)

// Record is the final export of one run: the snapshot history plus the terminal
// entity tables and message log.
type Record struct {
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	Config    *config.Config `json:"config,omitempty"`
	scheduler.Result
	Digest string `json:"digest"` // sha256 of the canonical snapshot history
}

// NewRecord stamps res with a fresh run ID and its digest.
func NewRecord(cfg *config.Config, res scheduler.Result) (*Record, error) {
	digest, err := Digest(res.Snapshots)
	if err != nil {
		return nil, err
	}
	return &Record{
		RunID:     uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Config:    cfg,
		Result:    res,
		Digest:    digest,
	}, nil
}

// Digest returns the hex SHA-256 of the RFC 8785 canonical JSON of snapshots.
// Runs with the same configuration and seed have equal digests.
func Digest(snapshots []scheduler.Snapshot) (string, error) {
	if snapshots == nil {
		snapshots = []scheduler.Snapshot{}
	}
	raw, err := json.Marshal(snapshots)
	if err != nil {
		return "", fmt.Errorf("marshal snapshots: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshots: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// WriteJSON writes rec as indented JSON.
func WriteJSON(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadJSON loads a record written by WriteJSON.
func ReadJSON(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &rec, nil
}
