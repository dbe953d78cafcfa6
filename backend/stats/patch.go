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

package stats

// BattingPatch sets the batting counters that are non-nil.
type BattingPatch struct {
	AtBats     *int `json:"atBats,omitempty"`
	Hits       *int `json:"hits,omitempty"`
	Singles    *int `json:"singles,omitempty"`
	Doubles    *int `json:"doubles,omitempty"`
	Triples    *int `json:"triples,omitempty"`
	HomeRuns   *int `json:"homeRuns,omitempty"`
	Walks      *int `json:"walks,omitempty"`
	Strikeouts *int `json:"strikeouts,omitempty"`
	Runs       *int `json:"runs,omitempty"`
	RBIs       *int `json:"rbis,omitempty"`
	Errors     *int `json:"errors,omitempty"`
}

// FieldingPatch sets the fielding counters that are non-nil.
type FieldingPatch struct {
	GamesPlayed *int `json:"gamesPlayed,omitempty"`
	PutOuts     *int `json:"putOuts,omitempty"`
	Assists     *int `json:"assists,omitempty"`
	Errors      *int `json:"errors,omitempty"`
}

// PitchingPatch sets the pitching counters that are non-nil.
type PitchingPatch struct {
	GamesPitched   *int     `json:"gamesPitched,omitempty"`
	InningsPitched *float64 `json:"inningsPitched,omitempty"`
	Hits           *int     `json:"hits,omitempty"`
	Runs           *int     `json:"runs,omitempty"`
	EarnedRuns     *int     `json:"earnedRuns,omitempty"`
	Walks          *int     `json:"walks,omitempty"`
	Strikeouts     *int     `json:"strikeouts,omitempty"`
}

// StatsPatch is a partial update of a stat sheet. Derived rates cannot be
// patched; they are recomputed by Apply.
type StatsPatch struct {
	Batting  *BattingPatch  `json:"batting,omitempty"`
	Fielding *FieldingPatch `json:"fielding,omitempty"`
	Pitching *PitchingPatch `json:"pitching,omitempty"`
}

// Apply merges p into s and re-derives the rates.
func Apply(s *PlayerStats, p StatsPatch) {
	if b := p.Batting; b != nil {
		set(&s.Batting.AtBats, b.AtBats)
		set(&s.Batting.Hits, b.Hits)
		set(&s.Batting.Singles, b.Singles)
		set(&s.Batting.Doubles, b.Doubles)
		set(&s.Batting.Triples, b.Triples)
		set(&s.Batting.HomeRuns, b.HomeRuns)
		set(&s.Batting.Walks, b.Walks)
		set(&s.Batting.Strikeouts, b.Strikeouts)
		set(&s.Batting.Runs, b.Runs)
		set(&s.Batting.RBIs, b.RBIs)
		set(&s.Batting.Errors, b.Errors)
	}
	if f := p.Fielding; f != nil {
		set(&s.Fielding.GamesPlayed, f.GamesPlayed)
		set(&s.Fielding.PutOuts, f.PutOuts)
		set(&s.Fielding.Assists, f.Assists)
		set(&s.Fielding.Errors, f.Errors)
	}
	if pp := p.Pitching; pp != nil {
		set(&s.Pitching.GamesPitched, pp.GamesPitched)
		set(&s.Pitching.InningsPitched, pp.InningsPitched)
		set(&s.Pitching.Hits, pp.Hits)
		set(&s.Pitching.Runs, pp.Runs)
		set(&s.Pitching.EarnedRuns, pp.EarnedRuns)
		set(&s.Pitching.Walks, pp.Walks)
		set(&s.Pitching.Strikeouts, pp.Strikeouts)
	}
	Derive(s)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
