// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llm defines the language-model collaborator contract consumed by the
// query pipeline, plus an implementation backed by any OpenAI-compatible chat
// endpoint (DeepSeek, Qwen dashscope, OpenAI).
//
// Callers must treat every call as fallible: network and quota failures are
// expected, and each pipeline node degrades to a deterministic fallback
// instead of propagating the failure.
package llm

import "context"

// Client is the language-model collaborator. Chat sends a single prompt with
// an optional system message and returns the raw completion text.
type Client interface {
	Chat(ctx context.Context, prompt, systemMessage string) (string, error)
}
