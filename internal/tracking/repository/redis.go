package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/schooltrack/internal/tracking/domain"
)

const defaultLocationPrefix = "track:vehicle:"

// RedisStore keeps the latest position per vehicle in a Redis hash. It is a
// drop-in alternative to the Postgres store for deployments that already run
// Redis and do not need the relational row.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisStore constructs the store. An empty prefix selects the default.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultLocationPrefix
	}
	return &RedisStore{client: client, keyPrefix: prefix}
}

// Upsert overwrites the hash for the vehicle.
func (r *RedisStore) Upsert(ctx context.Context, loc domain.VehicleLocation) error {
	key := r.keyPrefix + loc.VehicleID
	fields := map[string]any{
		"latitude":  strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		"longitude": strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		"timestamp": loc.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Latest reads the hash back or returns domain.ErrNotFound.
func (r *RedisStore) Latest(ctx context.Context, vehicleID string) (domain.VehicleLocation, error) {
	key := r.keyPrefix + vehicleID
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.VehicleLocation{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return domain.VehicleLocation{}, domain.ErrNotFound
	}

	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return domain.VehicleLocation{}, fmt.Errorf("parse latitude %q: %w", fields["latitude"], err)
	}
	lng, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return domain.VehicleLocation{}, fmt.Errorf("parse longitude %q: %w", fields["longitude"], err)
	}
	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"])
	if err != nil {
		return domain.VehicleLocation{}, fmt.Errorf("parse timestamp %q: %w", fields["timestamp"], err)
	}

	return domain.VehicleLocation{
		VehicleID: vehicleID,
		Latitude:  lat,
		Longitude: lng,
		Timestamp: ts,
	}, nil
}
