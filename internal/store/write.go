package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/aotc/internal/bundle"
	"github.com/roach88/aotc/internal/kernel"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutKernel caches art under kernelID. Uses ON CONFLICT(kernel_id) DO
// NOTHING, so writing the same kernel twice is a no-op.
func (s *Store) PutKernel(ctx context.Context, kernelID string, art *kernel.Artifact) error {
	return putKernel(ctx, s.db, kernelID, art)
}

func putKernel(ctx context.Context, ex execer, kernelID string, art *kernel.Artifact) error {
	if kernelID == "" {
		return fmt.Errorf("put kernel: empty kernel id")
	}
	conv, err := marshalConvention(art.Convention)
	if err != nil {
		return fmt.Errorf("put kernel %s: %w", kernelID, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO kernels
		(kernel_id, method, symbol, backend, target, object, object_digest, assembly, convention)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kernel_id) DO NOTHING
	`,
		kernelID,
		art.Method,
		art.Symbol,
		art.Backend,
		art.Target,
		art.Object,
		art.Digest(),
		art.Assembly,
		conv,
	)
	if err != nil {
		return fmt.Errorf("put kernel %s: %w", kernelID, err)
	}
	return nil
}

// writeModule inserts cm and its kernels in one transaction.
func (s *Store) writeModule(ctx context.Context, cm *bundle.CompiledModule) error {
	spec, err := marshalSpec(cm.Spec)
	if err != nil {
		return fmt.Errorf("write module: %w", err)
	}
	md, err := marshalMetadata(cm.Metadata)
	if err != nil {
		return fmt.Errorf("write module: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write module: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	unitID := cm.UnitID.String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO modules
		(unit_id, backend, model_name, model_version, spec, unit, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, unitID, cm.Backend, cm.ModelName, cm.ModelVersion, spec, cm.Unit, md); err != nil {
		return fmt.Errorf("write module: %w", err)
	}

	for seq, d := range cm.Descriptors {
		art, ok := cm.Artifact(d.Entry.Symbol)
		if !ok {
			return fmt.Errorf("write module: method %q has no artifact", d.Method)
		}
		if err := putKernel(ctx, tx, d.KernelID, art); err != nil {
			return fmt.Errorf("write module: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO methods (unit_id, seq, method, kernel_id)
			VALUES (?, ?, ?, ?)
		`, unitID, seq, d.Method, d.KernelID); err != nil {
			return fmt.Errorf("write module: method %q: %w", d.Method, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write module: commit: %w", err)
	}
	return nil
}
