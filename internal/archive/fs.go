package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const runSuffix = ".run.json"

// Filesystem stores one JSON document per run under a root directory. Writes
// go through a temp file and an atomic rename; it is not safe for concurrent
// writers of the same run ID beyond that.
type Filesystem struct {
	root string
}

// NewFilesystem returns a filesystem archive rooted at path, creating it if
// needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./rundata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFilesystem }

func (s *Filesystem) pathFor(runID string) (string, error) {
	if err := validateRunID(runID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, runID+runSuffix), nil
}

func (s *Filesystem) SaveRun(ctx context.Context, run RunArtifacts) (Info, error) {
	path, err := s.pathFor(run.RunID)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return Info{}, errors.New("run " + run.RunID + " already archived")
	}
	if run.StoredAt.IsZero() {
		run.StoredAt = time.Now().UTC()
	}
	b, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return Info{}, err
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Info{}, err
	}
	return Info{RunID: run.RunID, Size: int64(len(b)), StoredAt: run.StoredAt}, nil
}

func (s *Filesystem) LoadRun(ctx context.Context, runID string) (RunArtifacts, error) {
	path, err := s.pathFor(runID)
	if err != nil {
		return RunArtifacts{}, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return RunArtifacts{}, ErrNotFound{RunID: runID}
	}
	if err != nil {
		return RunArtifacts{}, err
	}
	var run RunArtifacts
	if err := json.Unmarshal(b, &run); err != nil {
		return RunArtifacts{}, err
	}
	return run, nil
}

func (s *Filesystem) ListRuns(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), runSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			RunID:    strings.TrimSuffix(e.Name(), runSuffix),
			Size:     fi.Size(),
			StoredAt: fi.ModTime().UTC(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RunID < infos[j].RunID })
	return infos, nil
}

func (s *Filesystem) Delete(ctx context.Context, runID string) (bool, error) {
	path, err := s.pathFor(runID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
