// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search parses list queries and matches them against records.
package search

import (
	"strings"
	"unicode"
)

// Operator defines the type of comparison for a filter.
type Operator string

const (
	OpEqual          Operator = "="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpRange          Operator = ".." // for date:2026-04..2026-06
)

// Longest prefix first so that ">=" wins over ">".
var prefixOperators = []Operator{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess}

// Filter represents a structured criteria derived from the query string.
type Filter struct {
	Key      string   // e.g., "team", "date", "is"
	Value    string   // e.g., "Bats", "2026-05-01", "final"
	MaxValue string   // Used only for OpRange
	Operator Operator // e.g., "=", ">="
}

// Query represents the parsed search query.
type Query struct {
	Filters  []Filter
	FreeText []string
}

// Parse parses a search query string into a structured Query object.
// It handles:
// - quoted strings (team:"Big Sticks")
// - key:value pairs
// - comparison operators and ranges (date:>=2026-05, date:2026-04..2026-06)
// - flags (is:final)
func Parse(input string) Query {
	q := Query{
		Filters:  make([]Filter, 0),
		FreeText: make([]string, 0),
	}
	for _, token := range tokenize(input) {
		f, ok := parseFilter(token)
		if !ok {
			q.FreeText = append(q.FreeText, removeQuotes(token))
			continue
		}
		q.Filters = append(q.Filters, f)
	}
	return q
}

func parseFilter(token string) (Filter, bool) {
	key, val, ok := strings.Cut(token, ":")
	if !ok {
		return Filter{}, false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	val = strings.TrimSpace(val)
	if key == "" || val == "" {
		return Filter{}, false
	}
	// An unquoted colon in the value is ambiguous, e.g. time:12:00.
	if strings.Contains(val, ":") && !strings.HasPrefix(val, "\"") && !strings.HasPrefix(val, "'") {
		return Filter{}, false
	}
	if lo, hi, ok := strings.Cut(val, string(OpRange)); ok {
		return Filter{Key: key, Value: lo, MaxValue: hi, Operator: OpRange}, true
	}
	for _, op := range prefixOperators {
		if rest, ok := strings.CutPrefix(val, string(op)); ok {
			return Filter{Key: key, Value: removeQuotes(rest), Operator: op}, true
		}
	}
	return Filter{Key: key, Value: removeQuotes(val), Operator: OpEqual}, true
}

// Lower returns a copy of q with free text and filter values lowercased,
// except for the values of the given keys.
func (q Query) Lower(keepCase ...string) Query {
	out := Query{
		Filters:  make([]Filter, len(q.Filters)),
		FreeText: make([]string, len(q.FreeText)),
	}
	for i, t := range q.FreeText {
		out.FreeText[i] = strings.ToLower(t)
	}
	for i, f := range q.Filters {
		out.Filters[i] = f
		keep := false
		for _, k := range keepCase {
			keep = keep || f.Key == k
		}
		if !keep {
			out.Filters[i].Value = strings.ToLower(f.Value)
		}
	}
	return out
}

// tokenize splits the string by spaces, respecting quotes.
func tokenize(input string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune

	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			current.WriteRune(r)
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		case r == '"' || r == '\'':
			quote = r
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func removeQuotes(s string) string {
	if len(s) >= 2 {
		first := s[0]
		last := s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
