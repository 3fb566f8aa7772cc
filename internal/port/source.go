package port

import (
	"context"

	"abstractrag/internal/domain"
)

// DocumentSource produces the raw documents fed to ingestion.
type DocumentSource interface {
	Load(ctx context.Context) ([]domain.RawDocument, error)

	Name() string
}
