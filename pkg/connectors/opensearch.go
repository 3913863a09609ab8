// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package connectors

import (
	"context"
	"fmt"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	opensearchapi "github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/rapidaai/voice-engine/pkg/commons"
)

// OpenSearchConfig carries connection parameters for the knowledge index.
type OpenSearchConfig struct {
	URL      string
	Username string
	Password string
}

// OpenSearchConnector hands out a shared opensearch client.
type OpenSearchConnector interface {
	Client() *opensearch.Client
	Ping(ctx context.Context) error
}

type openSearchConnector struct {
	logger commons.Logger
	client *opensearch.Client
}

// NewOpenSearchConnector builds a connector from config.
func NewOpenSearchConnector(cfg OpenSearchConfig, logger commons.Logger) (OpenSearchConnector, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w", err)
	}
	return &openSearchConnector{logger: logger, client: client}, nil
}

func (oc *openSearchConnector) Client() *opensearch.Client {
	return oc.client
}

func (oc *openSearchConnector) Ping(ctx context.Context) error {
	req := opensearchapi.PingRequest{}
	res, err := req.Do(ctx, oc.client)
	if err != nil {
		return fmt.Errorf("opensearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch ping failed: %s", res.Status())
	}
	return nil
}
