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

// Package tournament manages single-elimination tournaments.
package tournament

import (
	"cmp"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Tournament statuses.
const (
	StatusUpcoming  = "upcoming"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Matchup statuses.
const (
	MatchScheduled = "scheduled"
	MatchCompleted = "completed"
)

// SingleElimination is the only supported bracket type.
const SingleElimination = "single_elimination"

// Team is a tournament entrant.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Matchup is one bracket slot. Team2 is nil for a bye.
type Matchup struct {
	ID         string `json:"id"`
	Round      int    `json:"round"`
	GameNumber int    `json:"gameNumber"`
	Team1      *Team  `json:"team1"`
	Team2      *Team  `json:"team2"`
	Winner     *Team  `json:"winner"`
	Loser      *Team  `json:"loser"`
	Status     string `json:"status"`
	GameID     string `json:"gameId,omitempty"`
}

// Round is one level of the bracket. Round 1 is the championship.
type Round struct {
	RoundNumber int        `json:"roundNumber"`
	Name        string     `json:"name"`
	Games       []*Matchup `json:"games"`
}

// Brackets holds the rounds, earliest round first.
type Brackets struct {
	Type         string   `json:"type"`
	Rounds       []*Round `json:"rounds"`
	CurrentRound int      `json:"currentRound"`
}

// Settings for a tournament.
type Settings struct {
	MaxTeams         int    `json:"maxTeams"`
	ConsolationGames bool   `json:"consolationGames"`
	ThirdPlaceGame   bool   `json:"thirdPlaceGame"`
	SeedingMethod    string `json:"seedingMethod"`
}

// Tournament is the tournament record.
type Tournament struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Season    int      `json:"season"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate,omitempty"`
	Status    string   `json:"status"`
	Teams     []Team   `json:"teams"`
	GameIDs   []string `json:"games"`
	Brackets  Brackets `json:"brackets"`
	Settings  Settings `json:"settings"`
}

// New returns an empty tournament.
func New(name string) *Tournament {
	if name == "" {
		name = "New Tournament"
	}
	now := time.Now().UTC()
	return &Tournament{
		ID:        uuid.NewString(),
		Name:      name,
		Season:    now.Year(),
		StartDate: now.Format(time.RFC3339),
		Status:    StatusUpcoming,
		Teams:     []Team{},
		GameIDs:   []string{},
		Brackets:  Brackets{Type: SingleElimination, Rounds: []*Round{}},
		Settings: Settings{
			MaxTeams:         16,
			ConsolationGames: true,
			ThirdPlaceGame:   true,
			SeedingMethod:    "random",
		},
	}
}

func roundName(n int) string {
	names := []string{"Championship", "Semifinals", "Quarterfinals", "Round of 16", "Round of 32"}
	if n >= 1 && n <= len(names) {
		return names[n-1]
	}
	return fmt.Sprintf("Round %d", n)
}

// GenerateBrackets replaces the bracket with a fresh single-elimination
// draw. Round r holds 2^(r-1) matchups. Teams are shuffled with rng; when
// the field is not a power of two the top seeds get byes, which are
// completed immediately.
func GenerateBrackets(t *Tournament, rng *rand.Rand) {
	t.Brackets = Brackets{Type: SingleElimination, Rounds: []*Round{}}
	n := len(t.Teams)
	if n < 2 {
		return
	}
	numRounds := bits.Len(uint(n - 1))
	for r := numRounds; r >= 1; r-- {
		round := &Round{RoundNumber: r, Name: roundName(r)}
		for i := range 1 << (r - 1) {
			round.Games = append(round.Games, &Matchup{
				ID:         uuid.NewString(),
				Round:      r,
				GameNumber: i + 1,
				Status:     MatchScheduled,
			})
		}
		t.Brackets.Rounds = append(t.Brackets.Rounds, round)
	}

	teams := slices.Clone(t.Teams)
	rng.Shuffle(len(teams), func(i, j int) { teams[i], teams[j] = teams[j], teams[i] })

	first := t.Brackets.Rounds[0]
	m := len(first.Games)
	for i := range teams {
		team := teams[i]
		if i < m {
			first.Games[i].Team1 = &team
		} else {
			first.Games[i-m].Team2 = &team
		}
	}
	t.Brackets.CurrentRound = numRounds
	for _, g := range first.Games {
		if g.Team2 == nil {
			g.Winner = g.Team1
			g.Status = MatchCompleted
			t.seedNext(g, g.Team1)
		}
	}
}

// Find returns the matchup with the given id.
func (t *Tournament) Find(matchupID string) *Matchup {
	for _, r := range t.Brackets.Rounds {
		for _, g := range r.Games {
			if g.ID == matchupID {
				return g
			}
		}
	}
	return nil
}

func (t *Tournament) round(n int) *Round {
	for _, r := range t.Brackets.Rounds {
		if r.RoundNumber == n {
			return r
		}
	}
	return nil
}

func (t *Tournament) seedNext(g *Matchup, winner *Team) {
	next := t.round(g.Round - 1)
	if next == nil {
		return
	}
	idx := (g.GameNumber - 1) / 2
	if idx >= len(next.Games) {
		return
	}
	w := *winner
	if g.GameNumber%2 == 1 {
		next.Games[idx].Team1 = &w
	} else {
		next.Games[idx].Team2 = &w
	}
}

// Advance records the result of a matchup and seeds the winner into the
// next round. It reports false when the matchup is unknown, already
// decided, still waiting for an entrant, or the winner is not one of its
// participants.
func Advance(t *Tournament, matchupID string, winner, loser Team) bool {
	g := t.Find(matchupID)
	if g == nil || g.Status == MatchCompleted {
		return false
	}
	// Byes are decided when the bracket is generated.
	if g.Team1 == nil || g.Team2 == nil {
		return false
	}
	if !g.has(winner.ID) || (loser.ID != "" && !g.has(loser.ID)) || winner.ID == loser.ID {
		return false
	}
	g.Winner = &winner
	if loser.ID != "" {
		g.Loser = &loser
	}
	g.Status = MatchCompleted
	t.seedNext(g, &winner)

	t.Status = StatusActive
	if g.Round == 1 {
		t.Status = StatusCompleted
		t.EndDate = time.Now().UTC().Format(time.RFC3339)
	}
	if r := t.round(g.Round); r != nil && r.done() && g.Round > 1 {
		t.Brackets.CurrentRound = g.Round - 1
	}
	return true
}

func (g *Matchup) has(id string) bool {
	return (g.Team1 != nil && g.Team1.ID == id) || (g.Team2 != nil && g.Team2.ID == id)
}

func (r *Round) done() bool {
	for _, g := range r.Games {
		if g.Status != MatchCompleted {
			return false
		}
	}
	return true
}

// Result is the outcome of one game between two entrants.
type Result struct {
	HomeID   string `json:"homeId"`
	AwayID   string `json:"awayId"`
	HomeRuns int    `json:"homeRuns"`
	AwayRuns int    `json:"awayRuns"`
	Final    bool   `json:"final"`
}

// Standing is one row of the standings table.
type Standing struct {
	Team            Team    `json:"team"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinPercentage   float64 `json:"winPercentage"`
	RunsFor         int     `json:"runsFor"`
	RunsAgainst     int     `json:"runsAgainst"`
	RunDifferential int     `json:"runDifferential"`
	GamesPlayed     int     `json:"gamesPlayed"`
}

// Standings ranks teams by win percentage, then run differential. Runs
// count from every game; wins and losses only from final games.
func Standings(teams []Team, results []Result) []Standing {
	out := make([]Standing, 0, len(teams))
	for _, team := range teams {
		s := Standing{Team: team}
		for _, r := range results {
			var us, them int
			switch team.ID {
			case r.HomeID:
				us, them = r.HomeRuns, r.AwayRuns
			case r.AwayID:
				us, them = r.AwayRuns, r.HomeRuns
			default:
				continue
			}
			s.RunsFor += us
			s.RunsAgainst += them
			if !r.Final {
				continue
			}
			switch {
			case us > them:
				s.Wins++
			case us < them:
				s.Losses++
			}
		}
		s.GamesPlayed = s.Wins + s.Losses
		if s.GamesPlayed > 0 {
			s.WinPercentage = math.Round(float64(s.Wins)/float64(s.GamesPlayed)*1000) / 1000
		}
		s.RunDifferential = s.RunsFor - s.RunsAgainst
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.WinPercentage, a.WinPercentage); c != 0 {
			return c
		}
		return cmp.Compare(b.RunDifferential, a.RunDifferential)
	})
	return out
}

// Progress summarizes how much of the bracket has been played.
type Progress struct {
	TotalGames     int `json:"totalGames"`
	CompletedGames int `json:"completedGames"`
	Percentage     int `json:"percentage"`
}

// GetProgress counts completed matchups.
func GetProgress(t *Tournament) Progress {
	var p Progress
	for _, r := range t.Brackets.Rounds {
		for _, g := range r.Games {
			p.TotalGames++
			if g.Status == MatchCompleted {
				p.CompletedGames++
			}
		}
	}
	if p.TotalGames > 0 {
		p.Percentage = int(math.Round(float64(p.CompletedGames) / float64(p.TotalGames) * 100))
	}
	return p
}
