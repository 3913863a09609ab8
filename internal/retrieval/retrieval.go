// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_retrieval augments the generation prompt with knowledge
// documents when the user message looks like a question the index can help
// with. Retrieval is best-effort: a missing connector or a failed search
// leaves the prompt unchanged and the turn proceeds.
package internal_retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	opensearchapi "github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/connectors"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

const (
	// maxDocuments bounds how many knowledge snippets join the prompt.
	maxDocuments = 3
	// maxSnippetRunes keeps any one document from dominating the prompt.
	maxSnippetRunes = 400
)

// defaultTriggers mark a user message as knowledge-seeking. Word-boundary,
// case-insensitive.
var defaultTriggers = []string{
	"what", "how", "when", "where", "who", "which", "why",
	"explain", "describe", "tell",
}

// Retriever performs keyword-triggered knowledge search.
type Retriever struct {
	logger     commons.Logger
	opensearch connectors.OpenSearchConnector
	index      string
	triggers   []string
}

// NewRetriever creates a retriever over the given index. A nil connector
// disables retrieval entirely.
func NewRetriever(logger commons.Logger, opensearch connectors.OpenSearchConnector, index string, triggers []string) *Retriever {
	if len(triggers) == 0 {
		triggers = defaultTriggers
	}
	return &Retriever{
		logger:     logger,
		opensearch: opensearch,
		index:      index,
		triggers:   triggers,
	}
}

// Enabled reports whether a knowledge index is wired in.
func (r *Retriever) Enabled() bool {
	return r.opensearch != nil && !utils.IsEmpty(r.index)
}

// ShouldRetrieve reports whether the user message contains a trigger word.
func (r *Retriever) ShouldRetrieve(userMessage string) bool {
	if !r.Enabled() {
		return false
	}
	words := strings.Fields(strings.ToLower(userMessage))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"")
		for _, trigger := range r.triggers {
			if w == trigger {
				return true
			}
		}
	}
	return false
}

// Augment returns the system prompt extended with knowledge snippets matching
// the user message. On any failure the original prompt is returned.
func (r *Retriever) Augment(ctx context.Context, systemPrompt, userMessage string) string {
	if !r.ShouldRetrieve(userMessage) {
		return systemPrompt
	}

	snippets, err := r.search(ctx, userMessage)
	if err != nil {
		r.logger.Warnw("knowledge search failed, continuing without retrieval", "error", err)
		return systemPrompt
	}
	if len(snippets) == 0 {
		return systemPrompt
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nRelevant knowledge:\n")
	for _, s := range snippets {
		sb.WriteString("- ")
		sb.WriteString(utils.Truncate(s, maxSnippetRunes))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *Retriever) search(ctx context.Context, query string) ([]string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"size": maxDocuments,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"content": query,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	req := opensearchapi.SearchRequest{
		Index: []string{r.index},
		Body:  strings.NewReader(string(body)),
	}
	res, err := req.Do(ctx, r.opensearch.Client())
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search returned %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	snippets := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if content, ok := hit.Source["content"].(string); ok && !utils.IsEmpty(content) {
			snippets = append(snippets, content)
		}
	}
	return snippets, nil
}
