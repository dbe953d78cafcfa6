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

// Package engine implements the wiffle-ball game state machine.
//
// All transitions operate in place on a *Game and never touch I/O. Callers
// are responsible for persisting the record after each call and for making
// sure only one goroutine mutates a given Game at a time.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// Side identifies one of the two participating teams.
type Side string

const (
	Home Side = "home"
	Away Side = "away"
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == Home {
		return Away
	}
	return Home
}

// Valid reports whether s is home or away.
func (s Side) Valid() bool {
	return s == Home || s == Away
}

// Half is the half of an inning.
type Half string

const (
	Top    Half = "top"
	Bottom Half = "bottom"
)

// Status is the lifecycle status of a game. The only transition is
// InProgress -> Final.
type Status string

const (
	InProgress Status = "in_progress"
	Final      Status = "final"
)

// Defaults for a new game.
const (
	DefaultInnings    = 6
	DefaultMercyRule  = 10
	DefaultMaxInnings = 12

	// MercyMinInning is the first inning in which the mercy rule applies.
	MercyMinInning = 4
)

// PerTeam holds one value for each side.
type PerTeam[T any] struct {
	Home T `json:"home"`
	Away T `json:"away"`
}

// For returns a pointer to the value for side s.
func (p *PerTeam[T]) For(s Side) *T {
	if s == Home {
		return &p.Home
	}
	return &p.Away
}

// TeamRef is a participant in a game: a display name and the lineup.
type TeamRef struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Players []string `json:"players"`
}

// Settings are fixed once the game starts.
type Settings struct {
	Innings    int `json:"innings"`
	MercyRule  int `json:"mercyRule"`
	MaxInnings int `json:"maxInnings"`
}

// Weather is descriptive metadata. It has no effect on transitions.
type Weather struct {
	Temperature   *float64 `json:"temperature"`
	Humidity      *float64 `json:"humidity"`
	WindSpeed     *float64 `json:"windSpeed"`
	WindDirection string   `json:"windDirection,omitempty"`
	Conditions    string   `json:"conditions,omitempty"`
	Notes         string   `json:"notes"`
}

// Dimensions of the field in feet.
type Dimensions struct {
	LeftField   int `json:"leftField"`
	CenterField int `json:"centerField"`
	RightField  int `json:"rightField"`
	FoulLines   int `json:"foulLines"`
}

// Field describes where the game is played.
type Field struct {
	Name       string     `json:"name"`
	Dimensions Dimensions `json:"dimensions"`
	Surface    string     `json:"surface"`
	Conditions string     `json:"conditions"`
}

// TournamentLink ties a game to a tournament matchup.
type TournamentLink struct {
	ID         string `json:"id,omitempty"`
	Round      int    `json:"round,omitempty"`
	GameNumber int    `json:"gameNumber,omitempty"`
}

// Bases holds the runner identifier on each base, or "" when empty.
type Bases struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Third  string `json:"third"`
}

// Count returns the number of occupied bases.
func (b Bases) Count() int {
	n := 0
	for _, r := range []string{b.First, b.Second, b.Third} {
		if r != "" {
			n++
		}
	}
	return n
}

// FieldingPositions maps each defensive position to a player id.
type FieldingPositions struct {
	Pitcher   string `json:"pitcher"`
	Catcher   string `json:"catcher"`
	First     string `json:"first"`
	Second    string `json:"second"`
	Third     string `json:"third"`
	Shortstop string `json:"shortstop"`
	Left      string `json:"left"`
	Center    string `json:"center"`
	Right     string `json:"right"`
}

// Pitch is the most recently tracked pitch.
type Pitch struct {
	Type     string   `json:"type,omitempty"`
	Speed    *float64 `json:"speed"`
	Location string   `json:"location,omitempty"`
	Result   string   `json:"result,omitempty"`
}

// DefensiveShift is the current defensive alignment.
type DefensiveShift struct {
	Type      string            `json:"type"`
	Positions map[string]string `json:"positions"`
	Timestamp string            `json:"timestamp,omitempty"`
}

// State is the live, mutating part of a game.
type State struct {
	Inning        int                  `json:"inning"`
	Half          Half                 `json:"half"`
	Outs          int                  `json:"outs"`
	Balls         int                  `json:"balls"`
	Strikes       int                  `json:"strikes"`
	BattingTeam   Side                 `json:"battingTeam"`
	LineupIndex   PerTeam[int]         `json:"lineupIndex"`
	ScoreByInning PerTeam[map[int]int] `json:"scoreByInning"`
	Total         PerTeam[int]         `json:"total"`
	Status        Status               `json:"status"`
	Events        []Event              `json:"events"`
	Bases         Bases                `json:"bases"`
	CurrentBatter string               `json:"currentBatter"`

	FieldingPositions FieldingPositions `json:"fieldingPositions"`
	CurrentPitch      Pitch             `json:"currentPitch"`
	DefensiveShift    DefensiveShift    `json:"defensiveShift"`
}

// Game is the aggregate the engine mutates.
type Game struct {
	ID         string         `json:"id"`
	CreatedAt  string         `json:"createdAt"`
	Home       TeamRef        `json:"home"`
	Away       TeamRef        `json:"away"`
	Settings   Settings       `json:"settings"`
	Weather    Weather        `json:"weather"`
	Field      Field          `json:"field"`
	Tournament TournamentLink `json:"tournament"`
	State      State          `json:"state"`
}

// Team returns the participant for side s.
func (g *Game) Team(s Side) *TeamRef {
	if s == Home {
		return &g.Home
	}
	return &g.Away
}

// IsFinal reports whether the game has ended.
func (g *Game) IsFinal() bool {
	return g.State.Status == Final
}

// Option customizes a new game.
type Option func(*Game)

// WithTeams sets both participants.
func WithTeams(home, away TeamRef) Option {
	return func(g *Game) {
		g.Home = home
		g.Away = away
	}
}

// WithSettings overrides the default settings. Non-positive values keep the default.
func WithSettings(s Settings) Option {
	return func(g *Game) {
		if s.Innings > 0 {
			g.Settings.Innings = s.Innings
		}
		if s.MercyRule > 0 {
			g.Settings.MercyRule = s.MercyRule
		}
		if s.MaxInnings > 0 {
			g.Settings.MaxInnings = s.MaxInnings
		}
	}
}

// WithTournament links the game to a tournament matchup.
func WithTournament(t TournamentLink) Option {
	return func(g *Game) {
		g.Tournament = t
	}
}

// Now is the clock used for timestamps. Tests may replace it.
var Now = func() time.Time {
	return time.Now().UTC()
}

func timestamp() string {
	return Now().Format(time.RFC3339Nano)
}

// New returns a fresh game with default settings and zeroed state.
func New(opts ...Option) *Game {
	g := &Game{
		ID:        uuid.NewString(),
		CreatedAt: timestamp(),
		Home:      TeamRef{Name: "Home", Players: []string{}},
		Away:      TeamRef{Name: "Away", Players: []string{}},
		Settings: Settings{
			Innings:    DefaultInnings,
			MercyRule:  DefaultMercyRule,
			MaxInnings: DefaultMaxInnings,
		},
		Field: Field{
			Name: "Home Field",
			Dimensions: Dimensions{
				LeftField:   200,
				CenterField: 250,
				RightField:  200,
				FoulLines:   150,
			},
			Surface:    "grass",
			Conditions: "good",
		},
		State: State{
			Inning:      1,
			Half:        Top,
			BattingTeam: Away,
			ScoreByInning: PerTeam[map[int]int]{
				Home: map[int]int{},
				Away: map[int]int{},
			},
			Status: InProgress,
			Events: []Event{},
			DefensiveShift: DefensiveShift{
				Type:      "standard",
				Positions: map[string]string{},
			},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.Normalize()
	return g
}

// Normalize fills in fields that older records may lack so that every
// transition can assume non-nil maps and valid enums.
func (g *Game) Normalize() {
	if g.Home.Players == nil {
		g.Home.Players = []string{}
	}
	if g.Away.Players == nil {
		g.Away.Players = []string{}
	}
	if g.Settings.Innings <= 0 {
		g.Settings.Innings = DefaultInnings
	}
	if g.Settings.MercyRule <= 0 {
		g.Settings.MercyRule = DefaultMercyRule
	}
	if g.Settings.MaxInnings <= 0 {
		g.Settings.MaxInnings = DefaultMaxInnings
	}
	s := &g.State
	if s.Inning < 1 {
		s.Inning = 1
	}
	if s.Half == "" {
		s.Half = Top
	}
	if !s.BattingTeam.Valid() {
		if s.Half == Bottom {
			s.BattingTeam = Home
		} else {
			s.BattingTeam = Away
		}
	}
	if s.Status == "" {
		s.Status = InProgress
	}
	if s.ScoreByInning.Home == nil {
		s.ScoreByInning.Home = map[int]int{}
	}
	if s.ScoreByInning.Away == nil {
		s.ScoreByInning.Away = map[int]int{}
	}
	if s.Events == nil {
		s.Events = []Event{}
	}
	if s.DefensiveShift.Type == "" {
		s.DefensiveShift.Type = "standard"
	}
	if s.DefensiveShift.Positions == nil {
		s.DefensiveShift.Positions = map[string]string{}
	}
}
