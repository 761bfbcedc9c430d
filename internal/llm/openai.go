// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"sqlpilot/internal/config"
)

// ChatClient implements Client over an OpenAI-compatible completion API.
type ChatClient struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// New creates a ChatClient from the LLM configuration. The provider's base
// URL decides which service actually answers; the wire protocol is the same
// for all supported providers.
func New(cfg config.LLMConfig) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: missing API key")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
	}, nil
}

// Chat sends one prompt and returns the completion text. The per-call
// timeout only tightens a caller deadline, never extends it.
func (c *ChatClient) Chat(ctx context.Context, prompt, systemMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var msgs []llms.MessageContent
	if systemMessage != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, systemMessage))
	}
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
