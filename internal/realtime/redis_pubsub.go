package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/models"
)

const (
	channelPrefix  = "certjob:updates:"
	publishTimeout = 5 * time.Second
)

// RedisPubSub carries job status updates from the worker to every server instance.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for job updates.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

func channel(jobID string) string { return channelPrefix + jobID }

// PublishJob publishes the job's current status to its channel.
func (r *RedisPubSub) PublishJob(ctx context.Context, job *models.GenerationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channel(job.ID), body).Err()
}

// SubscribeJob calls handler for every status published for jobID until cancel is called.
func (r *RedisPubSub) SubscribeJob(jobID string, handler func(*models.GenerationJob)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel(jobID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var job models.GenerationJob
				if err := json.Unmarshal([]byte(msg.Payload), &job); err != nil {
					r.logger.Warn("realtime: bad job update", zap.String("job_id", jobID), zap.Error(err))
					continue
				}
				handler(&job)
			}
		}
	}()
	return cancelCtx, nil
}
