package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
)

// rollbackGuard undoes a partially applied installation unless it is committed.
// Release runs on every exit path, so the guard has to be armed before the first
// side effect and committed after the last one.
type rollbackGuard struct {
	engine    *Engine
	repo      packages.Repository
	id        uuid.UUID
	committed bool
}

func (e *Engine) newRollbackGuard(repo packages.Repository) *rollbackGuard {
	return &rollbackGuard{
		engine: e,
		repo:   repo,
		id:     uuid.New(),
	}
}

// Commit keeps every change made since the guard was armed.
func (g *rollbackGuard) Commit() {
	g.committed = true
}

// Release removes the package directory, the author directory when it is left
// empty, the links owned by the package and its index record. Cleanup failures
// are logged because the original error is what the caller reports.
func (g *rollbackGuard) Release(ctx context.Context) {
	if g.committed {
		return
	}

	// Cleanup has to run even when the installation was interrupted.
	ctx = context.WithoutCancel(ctx)
	ctx = logger.WithFields(ctx, zap.Stringer("transaction", g.id))

	logger.WarnKV(ctx, "Rolling back installation", "repository", g.repo.String())

	var (
		layout     = g.engine.layout
		packageDir = layout.PackageDir(g.repo)
	)

	if err := g.engine.publisher.Unpublish(ctx, packageDir, nil); err != nil {
		logger.ErrorKV(ctx, "Failed to remove links during rollback", "error", err)
	}

	if err := removeAll(packageDir); err != nil {
		logger.ErrorKV(ctx, "Failed to remove package directory during rollback", "error", err)
	}

	if err := removeIfEmpty(layout.AuthorDir(g.repo)); err != nil {
		logger.ErrorKV(ctx, "Failed to remove author directory during rollback", "error", err)
	}

	if err := g.engine.index.Delete(ctx, g.repo); err != nil {
		logger.ErrorKV(ctx, "Failed to remove index record during rollback", "error", err)
	}
}
