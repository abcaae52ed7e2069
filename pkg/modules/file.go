package modules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/registry"
)

// File returns the module of file operations. Relative paths resolve against root;
// paths escaping root are rejected.
func File(root string) *registry.Table {
	f := &fileOps{root: root}
	return registry.NewTable("file").
		Register("read_file", f.read).
		Register("write_file", f.write).
		Register("exists", f.exists)
}

type fileOps struct {
	root string
}

func (f *fileOps) resolve(p string) (string, error) {
	if f.root == "" {
		return p, nil
	}
	full := filepath.Join(f.root, p)
	rel, err := filepath.Rel(f.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q", p, f.root)
	}
	return full, nil
}

func (f *fileOps) read(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, 1); err != nil {
		return nil, err
	}
	path, err := f.resolve(call.Action.Arg(0))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	return domain.Succeeded(call.Action, string(data)), nil
}

func (f *fileOps) write(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 2, 2); err != nil {
		return nil, err
	}
	path, err := f.resolve(call.Action.Arg(0))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}
	if err := os.WriteFile(path, []byte(call.Action.Arg(1)), 0644); err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}
	return domain.Succeeded(call.Action, path), nil
}

func (f *fileOps) exists(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, 1); err != nil {
		return nil, err
	}
	path, err := f.resolve(call.Action.Arg(0))
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return domain.Succeeded(call.Action, path), nil
	case errors.Is(err, fs.ErrNotExist):
		return domain.NewResult(call.Action, false, path), nil
	default:
		return nil, err
	}
}
