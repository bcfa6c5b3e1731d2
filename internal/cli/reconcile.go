package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marloweai/marlowe/internal/config"
	"github.com/marloweai/marlowe/internal/service"
)

// ReconcileCmd returns the reconcile command, a one-shot repair pass for
// entries the write path failed to index and for vectors orphaned by missed
// deletes.
func ReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one vector reconciliation pass",
		Long:  "Re-index knowledge entries whose vectors are missing or stale and remove orphaned vectors",
		RunE:  runReconcile,
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	if !comps.embedder.Available() {
		return fmt.Errorf("embedding provider not configured, nothing to reconcile")
	}
	if !comps.vectors.Available() {
		return fmt.Errorf("vector index not available, nothing to reconcile")
	}

	reconciler := service.NewReconciler(comps.store, comps.embedder, comps.vectors, cfg.VectorNamespace)
	return reconciler.ProcessJobs(ctx)
}
