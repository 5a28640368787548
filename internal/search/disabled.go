package search

import (
	"context"
	"errors"

	"github.com/trendz-app/auth-service/internal/models"
)

// DisabledIndex stands in when Elasticsearch is unavailable in development.
// Index calls become no-ops so auth flows keep working; searches fail.
type DisabledIndex struct{}

func (DisabledIndex) Index(ctx context.Context, user *models.User) error {
	return nil
}

func (DisabledIndex) Search(ctx context.Context, query string, limit int) ([]UserDocument, error) {
	return nil, errors.New("user directory is unavailable")
}
