package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/client"
	"github.com/trendz-app/auth-service/internal/models"
	"github.com/trendz-app/auth-service/internal/util"
)

// UserDocument is the public projection indexed for discovery. Credentials
// never reach the index.
type UserDocument struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	AvatarURL   string    `json:"avatar_url"`
	IsVerified  bool      `json:"is_verified"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	CreatedAt   time.Time `json:"created_at"`
}

type searchResult struct {
	Hits struct {
		Hits []struct {
			Source UserDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// UserIndex maintains the user directory in Elasticsearch
type UserIndex struct {
	es    *client.ESClient
	index string
}

func NewUserIndex(es *client.ESClient, index string) *UserIndex {
	return &UserIndex{es: es, index: index}
}

// Index upserts the public projection of a user
func (u *UserIndex) Index(ctx context.Context, user *models.User) error {
	doc := UserDocument{
		ID:          user.ID.String(),
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Bio:         user.Bio,
		AvatarURL:   user.AvatarURL,
		IsVerified:  user.IsVerified,
		Followers:   user.Followers,
		Following:   user.Following,
		CreatedAt:   user.CreatedAt,
	}

	res, err := u.es.IndexDocument(ctx, u.index, doc.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to index user: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index user: %s", res.Status())
	}

	util.Debug("User indexed",
		zap.String("user_id", doc.ID),
		zap.String("index", u.index))
	return nil
}

// Search matches users by username, display name, or bio
func (u *UserIndex) Search(ctx context.Context, query string, limit int) ([]UserDocument, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"username^3", "display_name^2", "bio"},
				"type":   "best_fields",
			},
		},
	}

	res, err := u.es.Search(ctx, u.index, body)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	var result searchResult
	if err := u.es.ParseResponse(res, &result); err != nil {
		return nil, err
	}

	docs := make([]UserDocument, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}
