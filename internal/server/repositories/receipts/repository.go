// Package receipts records the outcome of every processed transaction.
package receipts

import (
	"context"

	"github.com/mirokugang/mukon/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when signature was never processed.
	Get(ctx context.Context, signature string) (*models.Receipt, error)
	// Create stores r and fills in its Sequence and ProcessedAt.
	Create(ctx context.Context, r *models.Receipt) (*models.Receipt, error)
}
