// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package prompt holds the LLM prompt templates and their substitution
// mechanics. Templates are plain text with {name} placeholders; anything
// fancier than string substitution belongs in the caller.
package prompt

import (
	"embed"
	"strings"
	"sync"

	"sqlpilot/internal/errors"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Store loads and caches named templates.
type Store struct {
	mu    sync.RWMutex
	cache map[string]string
}

func NewStore() *Store {
	return &Store{cache: make(map[string]string)}
}

// Load returns the template body for name (without the .txt extension).
func (s *Store) Load(name string) (string, error) {
	s.mu.RLock()
	if body, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return body, nil
	}
	s.mu.RUnlock()

	data, err := templateFS.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return "", errors.Wrap(errors.TemplateNotFound, "prompt template "+name+" not found", err)
	}
	body := string(data)

	s.mu.Lock()
	s.cache[name] = body
	s.mu.Unlock()
	return body, nil
}

// Render substitutes {key} placeholders in tmpl. Placeholders without a
// matching key are left as-is so a missing variable is visible in the
// rendered output rather than silently blanked.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// LoadAndRender is the common load-then-substitute path.
func (s *Store) LoadAndRender(name string, vars map[string]string) (string, error) {
	tmpl, err := s.Load(name)
	if err != nil {
		return "", err
	}
	return Render(tmpl, vars), nil
}
