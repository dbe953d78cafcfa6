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

package tournament

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

func entrants(n int) []Team {
	var teams []Team
	for i := range n {
		teams = append(teams, Team{ID: fmt.Sprintf("t%d", i+1), Name: fmt.Sprintf("Team %d", i+1)})
	}
	return teams
}

func TestGenerateBrackets(t *testing.T) {
	for _, tc := range []struct {
		teams      int
		wantRounds int
		wantFirst  int
		wantByes   int
	}{
		{teams: 0},
		{teams: 1},
		{teams: 2, wantRounds: 1, wantFirst: 1},
		{teams: 4, wantRounds: 2, wantFirst: 2},
		{teams: 5, wantRounds: 3, wantFirst: 4, wantByes: 3},
		{teams: 8, wantRounds: 3, wantFirst: 4},
		{teams: 12, wantRounds: 4, wantFirst: 8, wantByes: 4},
	} {
		t.Run(fmt.Sprint(tc.teams), func(t *testing.T) {
			tr := New("Cup")
			tr.Teams = entrants(tc.teams)
			GenerateBrackets(tr, rand.New(rand.NewPCG(1, 2)))

			rounds := tr.Brackets.Rounds
			if len(rounds) != tc.wantRounds {
				t.Fatalf("rounds = %d, want %d", len(rounds), tc.wantRounds)
			}
			if tc.wantRounds == 0 {
				return
			}
			for _, r := range rounds {
				if want := 1 << (r.RoundNumber - 1); len(r.Games) != want {
					t.Errorf("round %d has %d matchups, want %d", r.RoundNumber, len(r.Games), want)
				}
			}
			if rounds[len(rounds)-1].Name != "Championship" {
				t.Errorf("last round = %q", rounds[len(rounds)-1].Name)
			}
			first := rounds[0]
			if len(first.Games) != tc.wantFirst {
				t.Errorf("first round has %d matchups", len(first.Games))
			}
			seen := map[string]bool{}
			byes := 0
			for _, g := range first.Games {
				if g.Team1 == nil {
					t.Errorf("matchup %d has no team", g.GameNumber)
					continue
				}
				seen[g.Team1.ID] = true
				if g.Team2 == nil {
					byes++
					if g.Status != MatchCompleted || g.Winner.ID != g.Team1.ID {
						t.Errorf("bye not completed: %+v", g)
					}
					continue
				}
				seen[g.Team2.ID] = true
			}
			if len(seen) != tc.teams {
				t.Errorf("%d distinct teams placed, want %d", len(seen), tc.teams)
			}
			if byes != tc.wantByes {
				t.Errorf("byes = %d, want %d", byes, tc.wantByes)
			}
		})
	}
}

func TestAdvanceToChampion(t *testing.T) {
	tr := New("Cup")
	tr.Teams = entrants(4)
	GenerateBrackets(tr, rand.New(rand.NewPCG(3, 4)))

	semis := tr.Brackets.Rounds[0]
	final := tr.Brackets.Rounds[1]
	for i, g := range semis.Games {
		if !Advance(tr, g.ID, *g.Team1, *g.Team2) {
			t.Fatalf("Advance(semi %d) failed", i)
		}
		if Advance(tr, g.ID, *g.Team1, *g.Team2) {
			t.Fatalf("Advance(semi %d) applied twice", i)
		}
	}
	champ := final.Games[0]
	if champ.Team1 == nil || champ.Team2 == nil {
		t.Fatalf("final not seeded: %+v", champ)
	}
	if champ.Team1.ID != semis.Games[0].Team1.ID || champ.Team2.ID != semis.Games[1].Team1.ID {
		t.Errorf("final = %v vs %v", champ.Team1, champ.Team2)
	}
	if tr.Brackets.CurrentRound != 1 || tr.Status != StatusActive {
		t.Errorf("currentRound=%d status=%s", tr.Brackets.CurrentRound, tr.Status)
	}
	if got := GetProgress(tr); got != (Progress{TotalGames: 3, CompletedGames: 2, Percentage: 67}) {
		t.Errorf("progress = %+v", got)
	}

	outsider := Team{ID: "nope"}
	if Advance(tr, champ.ID, outsider, *champ.Team1) {
		t.Error("non-participant advanced")
	}
	if Advance(tr, "missing", *champ.Team1, *champ.Team2) {
		t.Error("unknown matchup advanced")
	}
	if !Advance(tr, champ.ID, *champ.Team2, *champ.Team1) {
		t.Fatal("Advance(final) failed")
	}
	if tr.Status != StatusCompleted || tr.EndDate == "" {
		t.Errorf("status=%s endDate=%q", tr.Status, tr.EndDate)
	}
	if got := GetProgress(tr); got.Percentage != 100 {
		t.Errorf("progress = %+v", got)
	}
}

func TestAdvanceWaitsForBothEntrants(t *testing.T) {
	tr := New("Cup")
	tr.Teams = entrants(4)
	GenerateBrackets(tr, rand.New(rand.NewPCG(5, 6)))

	semis := tr.Brackets.Rounds[0].Games
	champ := tr.Brackets.Rounds[1].Games[0]
	if !Advance(tr, semis[0].ID, *semis[0].Team1, *semis[0].Team2) {
		t.Fatal("Advance(semi 1) failed")
	}
	if champ.Team1 == nil || champ.Team2 != nil {
		t.Fatalf("final = %v vs %v, want one entrant", champ.Team1, champ.Team2)
	}

	if Advance(tr, champ.ID, *champ.Team1, Team{}) {
		t.Fatal("final decided before the second semifinal")
	}
	if champ.Status == MatchCompleted || champ.Winner != nil {
		t.Errorf("final changed: %+v", champ)
	}
	if tr.Status == StatusCompleted || tr.EndDate != "" {
		t.Errorf("status=%s endDate=%q", tr.Status, tr.EndDate)
	}
	if semis[1].Status == MatchCompleted {
		t.Errorf("semi 2 completed: %+v", semis[1])
	}
	if got := GetProgress(tr); got.CompletedGames != 1 {
		t.Errorf("progress = %+v", got)
	}

	if !Advance(tr, semis[1].ID, *semis[1].Team2, *semis[1].Team1) {
		t.Fatal("Advance(semi 2) failed")
	}
	if !Advance(tr, champ.ID, *champ.Team1, *champ.Team2) {
		t.Fatal("Advance(final) failed once both entrants are seeded")
	}
	if tr.Status != StatusCompleted {
		t.Errorf("status = %s", tr.Status)
	}
}

func TestStandings(t *testing.T) {
	teams := entrants(3)
	results := []Result{
		{HomeID: "t1", AwayID: "t2", HomeRuns: 5, AwayRuns: 3, Final: true},
		{HomeID: "t2", AwayID: "t3", HomeRuns: 10, AwayRuns: 0, Final: true},
		{HomeID: "t3", AwayID: "t1", HomeRuns: 4, AwayRuns: 2, Final: true},
		{HomeID: "t1", AwayID: "t3", HomeRuns: 1, AwayRuns: 0, Final: false},
	}
	got := Standings(teams, results)
	var order []string
	for _, s := range got {
		order = append(order, s.Team.ID)
	}
	// All teams are 1-1; t2 leads on run differential.
	if fmt.Sprint(order) != "[t2 t1 t3]" {
		t.Errorf("order = %v", order)
	}
	t1 := got[1]
	want := Standing{Team: teams[0], Wins: 1, Losses: 1, WinPercentage: 0.5, RunsFor: 8, RunsAgainst: 7, RunDifferential: 1, GamesPlayed: 2}
	if t1 != want {
		t.Errorf("t1 = %+v, want %+v", t1, want)
	}
}
