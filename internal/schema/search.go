// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

const (
	exactScore = 1.0
	aliasScore = 0.95
)

// similarity scores two identifiers by normalized Levenshtein distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(maxLen)
}

// SearchFields finds columns matching keyword: exact name, alias, then
// fuzzy similarity above threshold. Results are ordered by score, ties
// broken by table and column name so the order is stable.
func (m *Manager) SearchFields(ctx context.Context, keyword string, threshold float64) ([]FieldMatch, error) {
	doc, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}

	kw := strings.ToLower(keyword)
	var matches []FieldMatch
	for _, t := range doc.Tables {
	columns:
		for _, c := range t.Columns {
			if kw == strings.ToLower(c.Name) {
				matches = append(matches, FieldMatch{Table: t.Name, Column: c.Name, Type: c.Type, Score: exactScore, MatchType: "exact"})
				continue
			}
			for _, a := range c.Aliases {
				if kw == strings.ToLower(a) {
					matches = append(matches, FieldMatch{Table: t.Name, Column: c.Name, Type: c.Type, Score: aliasScore, MatchType: "alias"})
					continue columns
				}
			}
			if s := similarity(kw, strings.ToLower(c.Name)); s >= threshold {
				matches = append(matches, FieldMatch{Table: t.Name, Column: c.Name, Type: c.Type, Score: s, MatchType: "fuzzy"})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Table != matches[j].Table {
			return matches[i].Table < matches[j].Table
		}
		return matches[i].Column < matches[j].Column
	})
	return matches, nil
}

var reQuestionToken = regexp.MustCompile(`[\p{Han}]+|[A-Za-z0-9_]+`)

// FindRelevantTables resolves the tables a question touches via table names,
// aliases, column names, and fuzzy keyword search. The result is sorted.
func (m *Manager) FindRelevantTables(ctx context.Context, question string) ([]string, error) {
	doc, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(question)
	relevant := map[string]bool{}

	for _, name := range doc.TableList {
		if strings.Contains(lower, strings.ToLower(name)) {
			relevant[name] = true
			continue
		}
		for _, a := range tableAliases(name) {
			if strings.Contains(lower, a) {
				relevant[name] = true
				break
			}
		}
	}

	for _, t := range doc.Tables {
	columns:
		for _, c := range t.Columns {
			if strings.Contains(lower, strings.ToLower(c.Name)) {
				relevant[t.Name] = true
				break
			}
			for _, a := range c.Aliases {
				if strings.Contains(lower, strings.ToLower(a)) {
					relevant[t.Name] = true
					break columns
				}
			}
		}
	}

	for _, kw := range reQuestionToken.FindAllString(lower, -1) {
		if len([]rune(kw)) < 2 {
			continue
		}
		matches, err := m.SearchFields(ctx, kw, 0.7)
		if err != nil {
			return nil, err
		}
		if len(matches) > 3 {
			matches = matches[:3]
		}
		for _, match := range matches {
			relevant[match.Table] = true
		}
	}

	out := make([]string, 0, len(relevant))
	for name := range relevant {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
