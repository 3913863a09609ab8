// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package connectors

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/voice-engine/pkg/commons"
)

// RedisConfig carries connection parameters for the usage/event stream.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// RedisConnector hands out a shared redis client.
type RedisConnector interface {
	Client() *redis.Client
	Ping(ctx context.Context) error
	Close() error
}

type redisConnector struct {
	logger commons.Logger
	client *redis.Client
}

// NewRedisConnector builds a connector from config. The connection is lazy;
// call Ping to verify reachability.
func NewRedisConnector(cfg RedisConfig, logger commons.Logger) RedisConnector {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	return &redisConnector{logger: logger, client: client}
}

func (rc *redisConnector) Client() *redis.Client {
	return rc.client
}

func (rc *redisConnector) Ping(ctx context.Context) error {
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (rc *redisConnector) Close() error {
	return rc.client.Close()
}
