// Package archive persists finished simulation runs: the daily output rows
// and the finalization summary, as one JSON document per run.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cropcore/internal/kernel"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	// DriverFilesystem stores runs under a local directory (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 stores runs in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps runs in memory (tests).
	DriverMemory Driver = "memory"
)

// ErrNotFound is returned when a run ID is not present in the archive.
type ErrNotFound struct {
	RunID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("run %q not found in archive", e.RunID)
}

// RunArtifacts is the stored document of one run.
type RunArtifacts struct {
	RunID    string             `json:"run_id"`
	StoredAt time.Time          `json:"stored_at"`
	Outputs  []kernel.OutputRow `json:"outputs"`
	Summary  kernel.Summary     `json:"summary"`
}

// Info describes an archived run without loading its payload.
type Info struct {
	RunID    string    `json:"run_id"`
	Size     int64     `json:"size_bytes"`
	StoredAt time.Time `json:"stored_at"`
}

// Store is the interface for run archive backends. SaveRun rejects an already
// archived run ID; runs are immutable once stored.
type Store interface {
	SaveRun(ctx context.Context, run RunArtifacts) (Info, error)
	LoadRun(ctx context.Context, runID string) (RunArtifacts, error)
	ListRuns(ctx context.Context) ([]Info, error)
	Delete(ctx context.Context, runID string) (bool, error)
	Driver() Driver
}

// Open selects a Store implementation using environment variables.
//
//	CROPCORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	CROPCORE_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./rundata)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CROPCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("CROPCORE_ARCHIVE_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

// validateRunID forbids IDs that would escape a filesystem root or produce
// surprising object keys.
func validateRunID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("empty run id")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid run id %q", id)
	}
	return nil
}
