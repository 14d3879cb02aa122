package inbox

import (
	"context"
	"fmt"

	"github.com/matheus3301/waconsole/internal/store"
	"go.uber.org/zap"
)

// LIDSource lists the LID to phone number mappings known to the transport.
type LIDSource interface {
	GetLIDMappings(ctx context.Context) []store.LIDMapping
}

// Reconciler folds LID-addressed contacts into their phone number contacts.
type Reconciler struct {
	db     *store.DB
	source LIDSource
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, source LIDSource, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, source: source, logger: logger}
}

// Reconcile refreshes the mapping table and merges contacts. It returns the
// number of merged contacts.
func (r *Reconciler) Reconcile(ctx context.Context) (int64, error) {
	mappings := r.source.GetLIDMappings(ctx)
	if len(mappings) == 0 {
		return 0, nil
	}
	if err := r.db.SyncLIDMap(mappings); err != nil {
		return 0, fmt.Errorf("sync lid map: %w", err)
	}
	merged, err := r.db.ReconcileLIDs()
	if err != nil {
		return 0, err
	}
	if merged > 0 {
		r.logger.Info("merged LID contacts", zap.Int64("count", merged))
	}
	return merged, nil
}
