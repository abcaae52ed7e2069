package file

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// Archive layout file names.
const (
	SnapshotFile = "results.gob"
	SuccessFile  = "SUCCESS"
	ConfigFile   = "config.yaml"
)

// DateLayout partitions archived runs by day.
const DateLayout = "2006-01-02"

// Archive implements ports.RunArchive on the local filesystem.
//
// Each run is written to <root>/<agent>/<YYYY-MM-DD>/<run-id>/ and holds a binary snapshot
// of the results, the resolved configuration and, for successful runs, an empty SUCCESS marker.
type Archive struct {
	Root string
}

// NewArchive creates an Archive rooted at root. An empty root means ".stagecraft/runs".
func NewArchive(root string) *Archive {
	if root == "" {
		root = filepath.Join(".stagecraft", "runs")
	}
	return &Archive{Root: root}
}

// Dir returns the directory a record is written to.
func (a *Archive) Dir(rec ports.ArchiveRecord) string {
	return filepath.Join(a.Root, rec.Agent, rec.Time.Format(DateLayout), rec.RunID)
}

// Save implements ports.RunArchive.
func (a *Archive) Save(ctx context.Context, rec ports.ArchiveRecord) (string, error) {
	if rec.Agent == "" {
		return "", fmt.Errorf("archive record has no agent")
	}
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	dir := a.Dir(rec)

	if rec.Results != nil {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(rec.Results); err != nil {
			return "", fmt.Errorf("failed to encode results: %w", err)
		}
		if err := writeAtomic(dir, SnapshotFile, buf.Bytes()); err != nil {
			return "", err
		}
	}
	if len(rec.Resolved) > 0 {
		if err := writeAtomic(dir, ConfigFile, rec.Resolved); err != nil {
			return "", err
		}
	}
	// The marker goes last so its presence implies a complete directory.
	if rec.Success {
		if err := writeAtomic(dir, SuccessFile, nil); err != nil {
			return "", err
		}
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure archive directory: %w", err)
	}
	return dir, nil
}

// LoadSnapshot decodes the results snapshot of an archived run directory.
func LoadSnapshot(dir string) (*domain.AgentResults, error) {
	data, err := os.ReadFile(filepath.Join(dir, SnapshotFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	results := domain.NewAgentResults()
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(results); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return results, nil
}

// Succeeded reports whether an archived run directory carries the SUCCESS marker.
func Succeeded(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SuccessFile))
	return err == nil
}

// Runs lists the archived run directories of an agent, oldest day first.
func (a *Archive) Runs(agent string) ([]string, error) {
	base := filepath.Join(a.Root, agent)
	days, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	var dirs []string
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		if _, err := time.Parse(DateLayout, day.Name()); err != nil {
			continue
		}
		runs, err := os.ReadDir(filepath.Join(base, day.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to list archive: %w", err)
		}
		for _, run := range runs {
			if run.IsDir() {
				dirs = append(dirs, filepath.Join(base, day.Name(), run.Name()))
			}
		}
	}
	return dirs, nil
}
