package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/aotc/internal/bundle"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/unit"
)

type scanner interface {
	Scan(dest ...any) error
}

// GetKernel looks up a cached kernel. A miss returns (nil, false, nil).
func (s *Store) GetKernel(ctx context.Context, kernelID string) (*kernel.Artifact, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT method, symbol, backend, target, object, object_digest, assembly, convention
		FROM kernels
		WHERE kernel_id = ?
	`, kernelID)

	art, err := scanKernel(row, kernelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return art, true, nil
}

func scanKernel(row scanner, kernelID string) (*kernel.Artifact, error) {
	var art kernel.Artifact
	var digest, conv string
	if err := row.Scan(
		&art.Method, &art.Symbol, &art.Backend, &art.Target,
		&art.Object, &digest, &art.Assembly, &conv,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan kernel %s: %w", kernelID, err)
	}
	if art.Digest() != digest {
		return nil, fmt.Errorf("kernel %s: stored object does not match its digest", kernelID)
	}
	cc, err := unmarshalConvention(conv)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", kernelID, err)
	}
	art.Convention = cc
	return &art, nil
}

// readModule loads the single module a container holds.
func (s *Store) readModule(ctx context.Context) (*bundle.CompiledModule, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules`).Scan(&count); err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	if count != 1 {
		return nil, fmt.Errorf("read module: container holds %d modules, want 1", count)
	}

	var cm bundle.CompiledModule
	var unitID, spec, md string
	if err := s.db.QueryRowContext(ctx, `
		SELECT unit_id, backend, model_name, model_version, spec, unit, metadata
		FROM modules
	`).Scan(&unitID, &cm.Backend, &cm.ModelName, &cm.ModelVersion, &spec, &cm.Unit, &md); err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}

	id, err := uuid.Parse(unitID)
	if err != nil {
		return nil, fmt.Errorf("read module: unit id: %w", err)
	}
	if id != bundle.UnitID(cm.Unit) {
		return nil, fmt.Errorf("read module: unit id %s does not match unit contents", id)
	}
	cm.UnitID = id
	if cm.Spec, err = unmarshalSpec(spec); err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	if cm.Metadata, err = unmarshalMetadata(md); err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}

	u, err := unit.Deserialize(cm.Unit)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	cm.Descriptors = u.Descriptors()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.method, m.kernel_id,
		       k.method, k.symbol, k.backend, k.target, k.object, k.object_digest, k.assembly, k.convention
		FROM methods m
		JOIN kernels k ON k.kernel_id = m.kernel_id
		WHERE m.unit_id = ?
		ORDER BY m.seq ASC
	`, unitID)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var method, kernelID string
		var art kernel.Artifact
		var digest, conv string
		if err := rows.Scan(&method, &kernelID,
			&art.Method, &art.Symbol, &art.Backend, &art.Target,
			&art.Object, &digest, &art.Assembly, &conv); err != nil {
			return nil, fmt.Errorf("read module: %w", err)
		}
		d, ok := u.Lookup(method)
		if !ok || d.KernelID != kernelID {
			return nil, fmt.Errorf("read module: method %q is bound to %s but the unit disagrees", method, kernelID)
		}
		if err := checkArtifact(d, &art, digest); err != nil {
			return nil, fmt.Errorf("read module: %w", err)
		}
		if art.Convention, err = unmarshalConvention(conv); err != nil {
			return nil, fmt.Errorf("read module: %w", err)
		}
		cm.Artifacts = append(cm.Artifacts, &art)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	if len(cm.Artifacts) != len(cm.Descriptors) {
		return nil, fmt.Errorf("read module: %d kernels for %d descriptors", len(cm.Artifacts), len(cm.Descriptors))
	}
	return &cm, nil
}

func checkArtifact(d ir.InvocationDescriptor, art *kernel.Artifact, digest string) error {
	if art.Digest() != digest || digest != d.Entry.ObjectDigest {
		return fmt.Errorf("kernel %s: stored object does not match its digest", d.KernelID)
	}
	if art.Symbol != d.Entry.Symbol {
		return fmt.Errorf("kernel %s: symbol %s, descriptor expects %s", d.KernelID, art.Symbol, d.Entry.Symbol)
	}
	return nil
}
