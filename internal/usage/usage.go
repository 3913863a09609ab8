// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_usage hands call accounting off at end of call: token
// counts, audio volume and turn count go to a Redis stream for the billing
// pipeline, and optionally to a webhook for integrations. Reporting is
// best-effort and never blocks call teardown on failure.
package internal_usage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/connectors"
)

// usageStream is the Redis stream key the billing pipeline consumes.
const usageStream = "voice-engine:usage"

// CallUsage is the per-call accounting record.
type CallUsage struct {
	CallID           string    `json:"callId"`
	CampaignID       string    `json:"campaignId,omitempty"`
	AccountID        string    `json:"accountId,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	EndedAt          time.Time `json:"endedAt"`
	Turns            int       `json:"turns"`
	PromptTokens     int64     `json:"promptTokens"`
	CompletionTokens int64     `json:"completionTokens"`
	AudioInBytes     int       `json:"audioInBytes"`
	AudioOutBytes    int       `json:"audioOutBytes"`
}

// Reporter delivers one usage record per ended call.
type Reporter interface {
	Report(ctx context.Context, usage CallUsage) error
}

// =============================================================================
// Redis stream reporter
// =============================================================================

type redisReporter struct {
	logger commons.Logger
	redis  connectors.RedisConnector
}

// NewRedisReporter reports usage onto the billing stream.
func NewRedisReporter(logger commons.Logger, redis connectors.RedisConnector) Reporter {
	return &redisReporter{logger: logger, redis: redis}
}

func (r *redisReporter) Report(ctx context.Context, usage CallUsage) error {
	err := r.redis.Client().XAdd(ctx, &redis.XAddArgs{
		Stream: usageStream,
		Values: map[string]interface{}{
			"callId":           usage.CallID,
			"campaignId":       usage.CampaignID,
			"accountId":        usage.AccountID,
			"startedAt":        usage.StartedAt.UnixMilli(),
			"endedAt":          usage.EndedAt.UnixMilli(),
			"turns":            usage.Turns,
			"promptTokens":     usage.PromptTokens,
			"completionTokens": usage.CompletionTokens,
			"audioInBytes":     usage.AudioInBytes,
			"audioOutBytes":    usage.AudioOutBytes,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("usage stream append: %w", err)
	}
	return nil
}

// =============================================================================
// Webhook reporter
// =============================================================================

type webhookReporter struct {
	logger commons.Logger
	client *resty.Client
	url    string
}

// NewWebhookReporter POSTs usage records to the configured endpoint.
func NewWebhookReporter(logger commons.Logger, url string) Reporter {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &webhookReporter{logger: logger, client: client, url: url}
}

func (w *webhookReporter) Report(ctx context.Context, usage CallUsage) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(usage).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("usage webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("usage webhook: status %d", resp.StatusCode())
	}
	return nil
}

// =============================================================================
// Recording store
// =============================================================================

// RecordingStore persists the per-call WAV tracks produced by the call
// recorder when the session ends.
type RecordingStore interface {
	SaveRecording(ctx context.Context, callID string, user, assistant []byte) error
}

type fileRecordingStore struct {
	logger commons.Logger
	dir    string
}

// NewFileRecordingStore stores call recordings under dir, one WAV file per
// track per call.
func NewFileRecordingStore(logger commons.Logger, dir string) (RecordingStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording dir: %w", err)
	}
	return &fileRecordingStore{logger: logger, dir: dir}, nil
}

func (f *fileRecordingStore) SaveRecording(ctx context.Context, callID string, user, assistant []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for track, wav := range map[string][]byte{"user": user, "assistant": assistant} {
		if len(wav) == 0 {
			continue
		}
		path := filepath.Join(f.dir, fmt.Sprintf("%s-%s.wav", callID, track))
		if err := os.WriteFile(path, wav, 0o644); err != nil {
			return fmt.Errorf("write recording: %w", err)
		}
		f.logger.Infow("call recording stored", "callId", callID, "track", track, "path", path, "bytes", len(wav))
	}
	return nil
}

// =============================================================================
// Fan-out
// =============================================================================

type multiReporter struct {
	logger    commons.Logger
	reporters []Reporter
}

// NewMultiReporter fans one record out to every reporter; individual
// failures are logged and do not stop the rest.
func NewMultiReporter(logger commons.Logger, reporters ...Reporter) Reporter {
	return &multiReporter{logger: logger, reporters: reporters}
}

func (m *multiReporter) Report(ctx context.Context, usage CallUsage) error {
	var lastErr error
	for _, r := range m.reporters {
		if err := r.Report(ctx, usage); err != nil {
			m.logger.Warnw("usage reporter failed", "callId", usage.CallID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}
