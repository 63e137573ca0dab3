// Package file provides file-based persistence of graphs, runs and approvals.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/flowgate/pkg/persistence"
	json "github.com/goccy/go-json"
)

const (
	graphsDir    = "graphs"
	runsDir      = "runs"
	approvalsDir = "approvals"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string

	// mu serializes read-modify-write sequences across the repositories.
	mu sync.Mutex

	graphRepo    *GraphRepository
	runRepo      *RunRepository
	approvalRepo *ApprovalRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.graphRepo = &GraphRepository{store: p}
	p.runRepo = &RunRepository{store: p}
	p.approvalRepo = &ApprovalRepository{store: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) GraphRepository() persistence.GraphRepository {
	return fp.graphRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return fp.approvalRepo
}

var errNotExist = errors.New("document does not exist")

// read decodes dir/id.json into target.
func (fp *Persistence) read(dir, id string, target any) error {
	if err := persistence.ValidateID(id); err != nil {
		return err
	}

	filePath := filepath.Join(fp.root, dir, id+".json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- id is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return errNotExist
		}

		return fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return nil
}

// write encodes value into dir/id.json through a temporary file and a rename.
func (fp *Persistence) write(dir, id string, value any) error {
	if err := persistence.ValidateID(id); err != nil {
		return err
	}

	targetDir := filepath.Join(fp.root, dir)

	err := os.MkdirAll(targetDir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	tmp, err := os.CreateTemp(targetDir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s/%s: %w", dir, id, err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	err = os.Rename(tmp.Name(), filepath.Join(targetDir, id+".json"))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s/%s: %w", dir, id, err)
	}

	return nil
}
