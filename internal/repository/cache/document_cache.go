package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docapi/internal/model"
	"docapi/internal/repository"
)

// ErrMiss is returned by Client.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Client is the subset of a key/value cache used by the document cache.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// documentCache is a read-through cache for FindByID.
// Records are immutable, so the only invalidation point is Delete.
// Cache failures never fail a request; the repository stays the source of truth.
type documentCache struct {
	repository.DocumentRepository
	client Client
	ttl    time.Duration
}

// Wrap decorates repo with a read-through cache. A nil client returns repo unchanged.
func Wrap(repo repository.DocumentRepository, client Client, ttl time.Duration) repository.DocumentRepository {
	if client == nil {
		return repo
	}
	return &documentCache{DocumentRepository: repo, client: client, ttl: ttl}
}

func (c *documentCache) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	key := documentKey(id)
	if b, err := c.client.Get(ctx, key); err == nil {
		var doc model.Document
		if err := json.Unmarshal(b, &doc); err == nil {
			return &doc, nil
		}
	}

	doc, err := c.DocumentRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(doc); err == nil {
		_ = c.client.Set(ctx, key, b, c.ttl)
	}
	return doc, nil
}

func (c *documentCache) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := c.DocumentRepository.Delete(ctx, id)
	// Invalidate regardless of outcome; a failed delete may still have removed the row.
	_ = c.client.Del(ctx, documentKey(id))
	return deleted, err
}

func documentKey(id int64) string {
	return fmt.Sprintf("document:%d", id)
}
