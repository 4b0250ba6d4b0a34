package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridclash/gridclash-backend/internal/apperror"
	"github.com/gridclash/gridclash-backend/internal/entity"
)

// ArchiveRepository stores records of completed matches for post-game result
// queries. Records expire on their own TTL; the live registry never reads
// from here.
type ArchiveRepository interface {
	Save(ctx context.Context, record *entity.MatchRecord) error
	GetByID(ctx context.Context, id string) (*entity.MatchRecord, error)
}

type dbArchive struct {
	client *redis.Client
	ttl    time.Duration
}

func NewArchiveRepository(client *redis.Client, ttl time.Duration) ArchiveRepository {
	return &dbArchive{
		client: client,
		ttl:    ttl,
	}
}

func (that *dbArchive) Save(ctx context.Context, record *entity.MatchRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not marshal match record: %w", err)
	}

	recordKey := "match:" + record.ID
	if err = that.client.Set(ctx, recordKey, recordJSON, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set match record: %w", err)
	}

	return nil
}

func (that *dbArchive) GetByID(ctx context.Context, id string) (*entity.MatchRecord, error) {
	recordKey := "match:" + id

	response, err := that.client.Get(ctx, recordKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRecordNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get match record by ID: %w", err)
	}

	var record entity.MatchRecord
	if err = json.Unmarshal([]byte(response), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match record: %w", err)
	}

	return &record, nil
}
