package progress

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "progress:"

// Redis is a Tracker backed by a shared Redis instance, for deployments
// running more than one worker replica behind a load balancer. The TTL doubles
// as the eviction policy.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Set(ctx context.Context, jobID, status string) {
	if err := r.client.Set(ctx, keyPrefix+jobID, status, r.ttl).Err(); err != nil {
		// Progress is advisory; a write failure must not fail the job.
		log.Printf("[Progress] Failed to store status for job %s: %v", jobID, err)
	}
}

func (r *Redis) Get(ctx context.Context, jobID string) string {
	status, err := r.client.Get(ctx, keyPrefix+jobID).Result()
	if err == redis.Nil {
		return UnknownStatus
	}
	if err != nil {
		log.Printf("[Progress] Failed to read status for job %s: %v", jobID, err)
		return UnknownStatus
	}
	return status
}

func (r *Redis) Close() error {
	return r.client.Close()
}
