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

// Package stats computes player and team statistics.
package stats

import (
	"math"

	"github.com/ttbt-io/wiffkeeper/backend/engine"
)

// Batting counters and rates.
type Batting struct {
	AtBats     int `json:"atBats"`
	Hits       int `json:"hits"`
	Singles    int `json:"singles"`
	Doubles    int `json:"doubles"`
	Triples    int `json:"triples"`
	HomeRuns   int `json:"homeRuns"`
	Walks      int `json:"walks"`
	Strikeouts int `json:"strikeouts"`
	Runs       int `json:"runs"`
	RBIs       int `json:"rbis"`
	Errors     int `json:"errors"`

	Average float64 `json:"average"`
	OBP     float64 `json:"obp"`
	SLG     float64 `json:"slg"`
}

// Fielding counters and rates.
type Fielding struct {
	GamesPlayed        int     `json:"gamesPlayed"`
	PutOuts            int     `json:"putOuts"`
	Assists            int     `json:"assists"`
	Errors             int     `json:"errors"`
	FieldingPercentage float64 `json:"fieldingPercentage"`
}

// Pitching counters and rates.
type Pitching struct {
	GamesPitched   int     `json:"gamesPitched"`
	InningsPitched float64 `json:"inningsPitched"`
	Hits           int     `json:"hits"`
	Runs           int     `json:"runs"`
	EarnedRuns     int     `json:"earnedRuns"`
	Walks          int     `json:"walks"`
	Strikeouts     int     `json:"strikeouts"`
	ERA            float64 `json:"era"`
}

// PlayerStats is the full stat sheet of one player.
type PlayerStats struct {
	Batting  Batting  `json:"batting"`
	Fielding Fielding `json:"fielding"`
	Pitching Pitching `json:"pitching"`
}

// New returns an empty stat sheet.
func New() PlayerStats {
	return PlayerStats{Fielding: Fielding{FieldingPercentage: 1}}
}

// Derive recomputes every rate from the counters.
func Derive(s *PlayerStats) {
	s.Batting.derive()
	s.Fielding.derive()
	s.Pitching.derive()
}

func (b *Batting) derive() {
	b.Average = ratio(b.Hits, b.AtBats)
	b.OBP = ratio(b.Hits+b.Walks, b.AtBats+b.Walks)
	b.SLG = ratio(b.TotalBases(), b.AtBats)
}

// TotalBases is the slugging numerator.
func (b Batting) TotalBases() int {
	return b.Singles + 2*b.Doubles + 3*b.Triples + 4*b.HomeRuns
}

// Add accumulates the counters of o into b and re-derives the rates.
func (b *Batting) Add(o Batting) {
	b.AtBats += o.AtBats
	b.Hits += o.Hits
	b.Singles += o.Singles
	b.Doubles += o.Doubles
	b.Triples += o.Triples
	b.HomeRuns += o.HomeRuns
	b.Walks += o.Walks
	b.Strikeouts += o.Strikeouts
	b.Runs += o.Runs
	b.RBIs += o.RBIs
	b.Errors += o.Errors
	b.derive()
}

func (f *Fielding) derive() {
	chances := f.PutOuts + f.Assists + f.Errors
	if chances == 0 {
		f.FieldingPercentage = 1
		return
	}
	f.FieldingPercentage = round(float64(f.PutOuts+f.Assists)/float64(chances), 3)
}

func (p *Pitching) derive() {
	if p.InningsPitched <= 0 {
		p.ERA = 0
		return
	}
	p.ERA = round(float64(p.EarnedRuns)*9/p.InningsPitched, 2)
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return round(float64(n)/float64(d), 3)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// FromEvents tallies batting counters per player from a play-by-play log.
// Events without a player are ignored.
func FromEvents(events []engine.Event) map[string]*Batting {
	out := map[string]*Batting{}
	get := func(id string) *Batting {
		b, ok := out[id]
		if !ok {
			b = &Batting{}
			out[id] = b
		}
		return b
	}
	for _, ev := range events {
		if ev.Player == "" {
			continue
		}
		switch ev.Type {
		case engine.EventSingle, engine.EventHit:
			b := get(ev.Player)
			b.AtBats++
			b.Hits++
			b.Singles++
			b.RBIs += ev.Runs
		case engine.EventDouble:
			b := get(ev.Player)
			b.AtBats++
			b.Hits++
			b.Doubles++
			b.RBIs += ev.Runs
		case engine.EventTriple:
			b := get(ev.Player)
			b.AtBats++
			b.Hits++
			b.Triples++
			b.RBIs += ev.Runs
		case engine.EventHomeRun:
			b := get(ev.Player)
			b.AtBats++
			b.Hits++
			b.HomeRuns++
			b.Runs++
			b.RBIs += ev.Runs
		case engine.EventStrikeout:
			b := get(ev.Player)
			b.AtBats++
			b.Strikeouts++
		case engine.EventOut, engine.EventError:
			get(ev.Player).AtBats++
		case engine.EventWalk:
			get(ev.Player).Walks++
		}
	}
	for _, b := range out {
		b.derive()
	}
	return out
}

// Totals summarizes a team's season.
type Totals struct {
	Games         int `json:"games"`
	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	Runs          int `json:"runs"`
	RunsAllowed   int `json:"runsAllowed"`
	RunDifference int `json:"runDifference"`
}

// SeasonTotals sums the games in which the team identified by id or name
// took part. Wins and losses count only final games.
func SeasonTotals(games []*engine.Game, team string) Totals {
	var t Totals
	for _, g := range games {
		side, ok := sideOf(g, team)
		if !ok {
			continue
		}
		t.Games++
		us, them := *g.State.Total.For(side), *g.State.Total.For(side.Other())
		t.Runs += us
		t.RunsAllowed += them
		if g.IsFinal() {
			switch {
			case us > them:
				t.Wins++
			case us < them:
				t.Losses++
			}
		}
	}
	t.RunDifference = t.Runs - t.RunsAllowed
	return t
}

func sideOf(g *engine.Game, team string) (engine.Side, bool) {
	for _, s := range []engine.Side{engine.Home, engine.Away} {
		ref := g.Team(s)
		if (ref.ID != "" && ref.ID == team) || ref.Name == team {
			return s, true
		}
	}
	return "", false
}
