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

import (
	"slices"
	"testing"
)

func eq(key, val string) Filter {
	return Filter{Key: key, Value: val, Operator: OpEqual}
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    string
		filters  []Filter
		freeText []string
	}{
		{"Empty", "   ", nil, nil},
		{"Filter", "away:Bats", []Filter{eq("away", "Bats")}, nil},
		{"KeyIsLowercased", "HOME:Sluggers", []Filter{eq("home", "Sluggers")}, nil},
		{"QuotedValues", `home:"Big Sticks" field:'Elm Park'`, []Filter{eq("home", "Big Sticks"), eq("field", "Elm Park")}, nil},
		{"FlagAndText", "is:final rematch", []Filter{eq("is", "final")}, []string{"rematch"}},
		{"QuotedFreeText", `sluggers "elm park" team:Bats`, []Filter{eq("team", "Bats")}, []string{"sluggers", "elm park"}},
		{"GreaterOrEqual", `date:>="2026-05-01"`, []Filter{{Key: "date", Value: "2026-05-01", Operator: OpGreaterOrEqual}}, nil},
		{"Greater", "date:>2026-05", []Filter{{Key: "date", Value: "2026-05", Operator: OpGreater}}, nil},
		{"LessOrEqual", "date:<=2026", []Filter{{Key: "date", Value: "2026", Operator: OpLessOrEqual}}, nil},
		{"Less", "date:<2027", []Filter{{Key: "date", Value: "2027", Operator: OpLess}}, nil},
		{"Range", "date:2026-04..2026-06", []Filter{{Key: "date", Value: "2026-04", MaxValue: "2026-06", Operator: OpRange}}, nil},
		{"EmptyValue", "home:", nil, []string{"home:"}},
		{"EmptyKey", ":Bats", nil, []string{":Bats"}},
		{"UnquotedColon", "start:18:30", nil, []string{"start:18:30"}},
		{"QuotedColon", `start:"18:30"`, []Filter{eq("start", "18:30")}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			q := Parse(tc.input)
			if q.Filters == nil || q.FreeText == nil {
				t.Fatalf("Parse(%q) returned nil slices", tc.input)
			}
			if !slices.Equal(q.Filters, tc.filters) && (len(q.Filters) != 0 || len(tc.filters) != 0) {
				t.Errorf("Filters = %#v, want %#v", q.Filters, tc.filters)
			}
			if !slices.Equal(q.FreeText, tc.freeText) && (len(q.FreeText) != 0 || len(tc.freeText) != 0) {
				t.Errorf("FreeText = %q, want %q", q.FreeText, tc.freeText)
			}
		})
	}
}

func TestLower(t *testing.T) {
	q := Parse(`Sluggers home:"Big Sticks" id:AbC-123`)
	low := q.Lower("id")

	if want := []string{"sluggers"}; !slices.Equal(low.FreeText, want) {
		t.Errorf("FreeText = %q, want %q", low.FreeText, want)
	}
	want := []Filter{eq("home", "big sticks"), eq("id", "AbC-123")}
	if !slices.Equal(low.Filters, want) {
		t.Errorf("Filters = %#v, want %#v", low.Filters, want)
	}
	if q.FreeText[0] != "Sluggers" || q.Filters[0].Value != "Big Sticks" {
		t.Errorf("Lower modified the original query: %#v", q)
	}
}
