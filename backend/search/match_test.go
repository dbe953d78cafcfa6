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

import "testing"

func TestMatches(t *testing.T) {
	doc := Document{
		Text: []string{"Big Sticks", "Bats", "Elm Park"},
		Fields: map[string]string{
			"home":  "Big Sticks",
			"away":  "Bats",
			"team":  "Big Sticks Bats",
			"field": "Elm Park",
		},
		Ordered: map[string]string{"date": "2026-05-02T18:00:00Z"},
		Flags:   map[string]bool{"final": true},
	}
	for _, tc := range []struct {
		query string
		want  bool
	}{
		{"", true},
		{"sticks", true},
		{"sticks elm", true},
		{"sticks clubs", false},
		{"home:sticks", true},
		{"away:sticks", false},
		{"team:bats", true},
		{`field:"elm park"`, true},
		{"is:final", true},
		{"is:live", false},
		{"date:2026-05", true},
		{"date:2026-06", false},
		{"date:>=2026-05-01", true},
		{"date:<2026-05-01", false},
		{"date:2026-04..2026-05", true},
		{"date:2026-01..2026-04", false},
		{"umpire:nobody", true},
		{"HOME:STICKS", true},
	} {
		q := Parse(tc.query).Lower("date")
		if got := q.Matches(doc); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestLowerKeepsCase(t *testing.T) {
	q := Parse(`Bats date:2026-05-02T18 home:Sticks`).Lower("date")
	if q.FreeText[0] != "bats" {
		t.Errorf("FreeText = %v", q.FreeText)
	}
	if q.Filters[0].Value != "2026-05-02T18" || q.Filters[1].Value != "sticks" {
		t.Errorf("Filters = %+v", q.Filters)
	}
}
