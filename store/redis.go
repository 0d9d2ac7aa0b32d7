// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is used as key prefix when no prefix is given
var DefaultRedisPrefix = "iotgrid"

// NewRedis returns a Store that keeps everything in Redis hashes per tenant
func NewRedis(client *redis.Client, prefix string) Store {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

type redisStore struct {
	client *redis.Client
	prefix string
}

func (s *redisStore) key(tenantID uuid.UUID, kind string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, tenantID, kind)
}

func (s *redisStore) get(ctx context.Context, key, field string, v interface{}) error {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *redisStore) set(ctx context.Context, key, field string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, key, field, data).Err()
}

func (s *redisStore) GetHub(ctx context.Context, tenantID uuid.UUID, hubID string) (*types.Hub, error) {
	hub := new(types.Hub)
	if err := s.get(ctx, s.key(tenantID, "hubs"), hubID, hub); err != nil {
		return nil, err
	}
	return hub, nil
}

func (s *redisStore) SaveHub(ctx context.Context, hub *types.Hub) error {
	return s.set(ctx, s.key(hub.TenantID, "hubs"), hub.HubID, hub)
}

func (s *redisStore) NextReadingID(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return s.client.Incr(ctx, s.key(tenantID, "reading-id")).Result()
}

func (s *redisStore) SaveReading(ctx context.Context, reading *types.Reading) error {
	key := s.key(reading.TenantID, "readings")
	var existing types.Reading
	err := s.get(ctx, key, reading.NodeID, &existing)
	switch {
	case err == nil && existing.Timestamp.After(reading.Timestamp):
		return nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}
	return s.set(ctx, key, reading.NodeID, reading)
}

func (s *redisStore) LatestReadings(ctx context.Context, tenantID uuid.UUID) ([]*types.Reading, error) {
	values, err := s.client.HVals(ctx, s.key(tenantID, "readings")).Result()
	if err != nil {
		return nil, err
	}
	readings := make([]*types.Reading, 0, len(values))
	for _, value := range values {
		reading := new(types.Reading)
		if err := json.Unmarshal([]byte(value), reading); err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].NodeID < readings[j].NodeID })
	return readings, nil
}

func (s *redisStore) GetAlert(ctx context.Context, tenantID, alertID uuid.UUID) (*types.Alert, error) {
	alert := new(types.Alert)
	if err := s.get(ctx, s.key(tenantID, "alerts"), alertID.String(), alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *redisStore) SaveAlert(ctx context.Context, alert *types.Alert) error {
	return s.set(ctx, s.key(alert.TenantID, "alerts"), alert.ID.String(), alert)
}

func (s *redisStore) Alerts(ctx context.Context, tenantID uuid.UUID) ([]*types.Alert, error) {
	values, err := s.client.HVals(ctx, s.key(tenantID, "alerts")).Result()
	if err != nil {
		return nil, err
	}
	alerts := make([]*types.Alert, 0, len(values))
	for _, value := range values {
		alert := new(types.Alert)
		if err := json.Unmarshal([]byte(value), alert); err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.Before(alerts[j].CreatedAt) })
	return alerts, nil
}

func (s *redisStore) GetDebugConfiguration(ctx context.Context, tenantID uuid.UUID, nodeID string) (*types.NodeDebugConfiguration, error) {
	config := new(types.NodeDebugConfiguration)
	if err := s.get(ctx, s.key(tenantID, "debug"), nodeID, config); err != nil {
		return nil, err
	}
	return config, nil
}

func (s *redisStore) SaveDebugConfiguration(ctx context.Context, tenantID uuid.UUID, config *types.NodeDebugConfiguration) error {
	return s.set(ctx, s.key(tenantID, "debug"), config.NodeID, config)
}
