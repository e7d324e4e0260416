package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const (
	OffersQueueKey      = "search:offers:queue"
	VenuesQueueKey      = "search:venues:queue"
	OffersErrorQueueKey = "search:offers:error"
)

// Queue holds ids waiting to be indexed in Redis sets, so an id queued
// twice is indexed once.
type Queue struct {
	Client *redis.Client
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{Client: client}
}

func (q *Queue) add(ctx context.Context, key string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		members = append(members, id)
	}
	if err := q.Client.SAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("failed to queue ids in %s: %w", key, err)
	}
	return nil
}

// pop removes and returns up to n random ids of the set.
func (q *Queue) pop(ctx context.Context, key string, n int) ([]int64, error) {
	values, err := q.Client.SPopN(ctx, key, int64(n)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop ids from %s: %w", key, err)
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *Queue) Size(ctx context.Context, key string) (int64, error) {
	return q.Client.SCard(ctx, key).Result()
}
