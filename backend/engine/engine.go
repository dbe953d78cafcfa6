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

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRuns is returned by AddRun for a non-positive run count.
	ErrInvalidRuns = errors.New("run count must be positive")
	// ErrMissingEventType is returned by RecordEvent for an untyped event.
	ErrMissingEventType = errors.New("event type is required")
)

// Count events logged for pitches that do not end the plate appearance.
const (
	EventStrike = "strike"
	EventBall   = "ball"
)

const (
	strikeoutStrikes = 2
	walkBalls        = 3
	outsPerHalf      = 3
	homePlate        = 4
)

// RecordEvent stamps ev with the current time and appends it to the log.
func (g *Game) RecordEvent(ev Event) error {
	if ev.Type == "" {
		return ErrMissingEventType
	}
	g.record(ev)
	return nil
}

func (g *Game) record(ev Event) {
	ev.Timestamp = timestamp()
	g.State.Events = append(g.State.Events, ev)
}

// AddRun credits n runs to the batting team in the current inning.
// It is a no-op on a final game.
func (g *Game) AddRun(n int) (bool, error) {
	if g.IsFinal() {
		return false, nil
	}
	if n <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidRuns, n)
	}
	g.addRun(n)
	return true, nil
}

func (g *Game) addRun(n int) {
	s := &g.State
	t := s.BattingTeam
	byInning := s.ScoreByInning.For(t)
	if *byInning == nil {
		*byInning = map[int]int{}
	}
	(*byInning)[s.Inning] += n
	*s.Total.For(t) += n
	g.record(Event{Type: EventRun, Team: t, Runs: n, Inning: s.Inning})

	g.CheckMercyRule()
}

// NextBatter moves the batting team's lineup cursor forward. An empty
// lineup behaves like a lineup of one.
func (g *Game) NextBatter() {
	t := g.State.BattingTeam
	n := max(1, len(g.Team(t).Players))
	idx := g.State.LineupIndex.For(t)
	*idx = (*idx + 1) % n
}

// ResetCount clears balls and strikes.
func (g *Game) ResetCount() {
	g.State.Balls = 0
	g.State.Strikes = 0
}

// SetCurrentBatter names the batter for the current plate appearance.
// The override is cleared when the plate appearance ends.
func (g *Game) SetCurrentBatter(id string) bool {
	if g.IsFinal() {
		return false
	}
	g.State.CurrentBatter = id
	g.record(Event{Type: EventBatterUp, Team: g.State.BattingTeam, Player: id})
	return true
}

// batter returns the identifier used to attribute the current plate
// appearance: the explicit current batter, then the lineup slot, then a
// positional placeholder such as "away#1".
func (g *Game) batter() string {
	s := &g.State
	if s.CurrentBatter != "" {
		return s.CurrentBatter
	}
	lineup := g.Team(s.BattingTeam).Players
	idx := *s.LineupIndex.For(s.BattingTeam)
	if len(lineup) > 0 {
		return lineup[idx%len(lineup)]
	}
	return fmt.Sprintf("%s#%d", s.BattingTeam, idx+1)
}

func (g *Game) endPlateAppearance() {
	g.ResetCount()
	g.State.CurrentBatter = ""
	g.NextBatter()
}

// AdvanceHalfInning ends the current half-inning. It is a no-op on a final game.
func (g *Game) AdvanceHalfInning() bool {
	if g.IsFinal() {
		return false
	}
	g.advanceHalfInning()
	return true
}

func (g *Game) advanceHalfInning() {
	s := &g.State
	g.ResetCount()
	s.Outs = 0
	if s.Half == Top {
		s.Half = Bottom
		s.BattingTeam = Home
		return
	}
	s.Half = Top
	s.BattingTeam = Away
	s.Inning++
	if s.Inning > g.Settings.Innings {
		s.Status = Final
		g.record(Event{Type: EventGameEnd})
	}
}

// Strike records a strike. The second strike is a strikeout.
func (g *Game) Strike() bool {
	if g.IsFinal() {
		return false
	}
	s := &g.State
	s.Strikes = min(strikeoutStrikes, s.Strikes+1)
	if s.Strikes < strikeoutStrikes {
		g.record(Event{Type: EventStrike, Team: s.BattingTeam, Count: g.count()})
		return true
	}
	s.Outs++
	g.record(Event{Type: EventStrikeout, Team: s.BattingTeam, Player: g.batter()})
	g.endPlateAppearance()
	if s.Outs >= outsPerHalf {
		g.advanceHalfInning()
	}
	return true
}

// Ball records a ball. The third ball is a walk; the batter does not take a base.
func (g *Game) Ball() bool {
	if g.IsFinal() {
		return false
	}
	s := &g.State
	s.Balls = min(walkBalls, s.Balls+1)
	if s.Balls < walkBalls {
		g.record(Event{Type: EventBall, Team: s.BattingTeam, Count: g.count()})
		return true
	}
	g.record(Event{Type: EventWalk, Team: s.BattingTeam, Player: g.batter()})
	g.endPlateAppearance()
	return true
}

// Out records an out on the batter.
func (g *Game) Out() bool {
	if g.IsFinal() {
		return false
	}
	s := &g.State
	s.Outs++
	g.record(Event{Type: EventOut, Team: s.BattingTeam, Player: g.batter()})
	g.endPlateAppearance()
	if s.Outs >= outsPerHalf {
		g.advanceHalfInning()
	}
	g.CheckMercyRule()
	return true
}

// Hit records a generic hit, scored like a single.
func (g *Game) Hit() bool {
	return g.ballInPlay(Event{Type: EventHit}, 1)
}

// Single records a one-base hit.
func (g *Game) Single() bool {
	return g.ballInPlay(Event{Type: EventSingle}, 1)
}

// Double records a two-base hit.
func (g *Game) Double() bool {
	return g.ballInPlay(Event{Type: EventDouble}, 2)
}

// Triple records a three-base hit.
func (g *Game) Triple() bool {
	return g.ballInPlay(Event{Type: EventTriple}, 3)
}

// ReachOnError puts the batter on first on a defensive error.
func (g *Game) ReachOnError(errorType string) bool {
	if errorType == "" {
		errorType = "fielding"
	}
	return g.ballInPlay(Event{Type: EventError, ErrorType: errorType}, 1)
}

// HomeRun scores the batter and every runner on base.
func (g *Game) HomeRun() bool {
	if g.IsFinal() {
		return false
	}
	s := &g.State
	team := s.BattingTeam
	batter := g.batter()
	runs := s.Bases.Count() + 1

	g.addRun(runs)
	s.Bases = Bases{}
	g.record(Event{Type: EventHomeRun, Team: team, Player: batter, Bases: homePlate, Runs: runs})
	g.endPlateAppearance()
	return true
}

func (g *Game) ballInPlay(ev Event, bases int) bool {
	if g.IsFinal() {
		return false
	}
	s := &g.State
	ev.Team = s.BattingTeam
	ev.Player = g.batter()
	ev.Bases = bases

	scored := *s.Total.For(ev.Team)
	g.advanceRunners(bases)
	ev.Runs = *s.Total.For(ev.Team) - scored
	*g.base(bases) = ev.Player
	g.record(ev)
	g.endPlateAppearance()
	return true
}

// advanceRunners moves every runner forward n bases, lead runner first, so
// that each base is vacated before a trailing runner arrives. Runners
// reaching home score one run each.
func (g *Game) advanceRunners(n int) {
	for from := 3; from >= 1; from-- {
		b := g.base(from)
		runner := *b
		if runner == "" {
			continue
		}
		*b = ""
		to := from + n
		if to >= homePlate {
			g.addRun(1)
			continue
		}
		*g.base(to) = runner
	}
}

func (g *Game) base(n int) *string {
	switch n {
	case 1:
		return &g.State.Bases.First
	case 2:
		return &g.State.Bases.Second
	case 3:
		return &g.State.Bases.Third
	}
	panic(fmt.Sprintf("engine: invalid base %d", n))
}

func (g *Game) count() string {
	return fmt.Sprintf("%d-%d", g.State.Balls, g.State.Strikes)
}

// CheckMercyRule ends the game when, from the fourth inning on, one team
// leads by at least the configured margin. It never logs twice.
func (g *Game) CheckMercyRule() {
	s := &g.State
	if s.Status == Final || s.Inning < MercyMinInning {
		return
	}
	home, away := s.Total.Home, s.Total.Away
	diff := home - away
	if diff < 0 {
		diff = -diff
	}
	if diff < g.Settings.MercyRule {
		return
	}
	winner := Away
	if home > away {
		winner = Home
	}
	s.Status = Final
	g.record(Event{Type: EventMercyRule, WinningTeam: winner, RunDifference: diff})
}

// End declares the game final before regulation ends.
func (g *Game) End() bool {
	if g.IsFinal() {
		return false
	}
	g.State.Status = Final
	g.record(Event{Type: EventGameEnd})
	return true
}
