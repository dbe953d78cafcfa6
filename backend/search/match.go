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

package search

import "strings"

// Document is the searchable view of a record. Text values are matched by
// free-text tokens, Fields by substring filters, Ordered by comparison
// filters and Flags by is:<flag>. Filters on unknown keys are ignored.
type Document struct {
	Text    []string
	Fields  map[string]string
	Ordered map[string]string
	Flags   map[string]bool
}

// Matches reports whether d satisfies every free-text token and filter of
// q. Callers lowercase q with Lower first; Ordered values compare as is.
func (q Query) Matches(d Document) bool {
	for _, token := range q.FreeText {
		found := false
		for _, s := range d.Text {
			if containsLower(s, token) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range q.Filters {
		if f.Key == "is" {
			if !d.Flags[f.Value] {
				return false
			}
			continue
		}
		if v, ok := d.Ordered[f.Key]; ok {
			if !compare(v, f) {
				return false
			}
			continue
		}
		if v, ok := d.Fields[f.Key]; ok && !containsLower(v, f.Value) {
			return false
		}
	}
	return true
}

func containsLower(s, substrLower string) bool {
	return strings.Contains(strings.ToLower(s), substrLower)
}

// compare applies f to v. Equality is a prefix match so that date:2026-05
// selects the whole month.
func compare(v string, f Filter) bool {
	switch f.Operator {
	case OpEqual:
		return strings.HasPrefix(v, f.Value)
	case OpGreater:
		return v > f.Value
	case OpGreaterOrEqual:
		return v >= f.Value
	case OpLess:
		return v < f.Value
	case OpLessOrEqual:
		return v <= f.Value
	case OpRange:
		return v >= f.Value && v <= f.MaxValue+"~"
	}
	return true
}
