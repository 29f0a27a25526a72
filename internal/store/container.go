package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/aotc/internal/bundle"
)

// WriteModule persists cm as a container file at path, replacing any
// existing file. The container is built next to path and renamed into
// place only after it is complete.
func WriteModule(ctx context.Context, path string, cm *bundle.CompiledModule) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	tmp := f.Name()
	f.Close()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	s, err := openWith(tmp, journalDelete)
	if err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	if err := s.writeModule(ctx, cm); err != nil {
		s.Close()
		return err
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	return nil
}

// ReadModule loads the compiled module stored in the container at path.
func ReadModule(ctx context.Context, path string) (*bundle.CompiledModule, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	s, err := openReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", path, err)
	}
	defer s.Close()
	return s.readModule(ctx)
}
