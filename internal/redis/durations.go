package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ConsultationStats keeps the last window consultation durations per doctor
// in a Redis list so every api-server replica sees the same moving average.
type ConsultationStats struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

func NewConsultationStats(client *redis.Client, window int) *ConsultationStats {
	if window <= 0 {
		window = 10
	}
	return &ConsultationStats{
		client: client,
		window: window,
		ttl:    30 * 24 * time.Hour,
	}
}

func statsKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("consult:durations:%s", doctorID)
}

func (s *ConsultationStats) Record(ctx context.Context, doctorID uuid.UUID, d time.Duration) error {
	key := statsKey(doctorID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, strconv.FormatFloat(d.Seconds(), 'f', 0, 64))
		pipe.LTrim(ctx, key, 0, int64(s.window-1))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record consultation duration: %w", err)
	}
	return nil
}

func (s *ConsultationStats) Average(ctx context.Context, doctorID uuid.UUID) (time.Duration, bool, error) {
	vals, err := s.client.LRange(ctx, statsKey(doctorID), 0, -1).Result()
	if err != nil {
		return 0, false, fmt.Errorf("load consultation durations: %w", err)
	}
	if len(vals) == 0 {
		return 0, false, nil
	}

	var total float64
	for _, v := range vals {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false, fmt.Errorf("parse consultation duration %q: %w", v, err)
		}
		total += secs
	}

	avg := total / float64(len(vals))
	return time.Duration(avg * float64(time.Second)), true, nil
}
