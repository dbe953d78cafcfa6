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

package backend

import (
	"slices"
	"testing"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/wiffkeeper/backend/engine"
)

func saveIndexedGame(t *testing.T, env *testEnv, g *Game) {
	t.Helper()
	if err := env.gs.SaveGame(g); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	env.reg.UpdateGame(g)
}

func TestRegistry_GameAccess(t *testing.T) {
	env := newTestEnv(t)
	r := env.reg

	owner := "owner@example.com"
	viewer := "viewer@example.com"

	g := NewGame(owner)
	g.Permissions.Users[viewer] = PermissionRead
	saveIndexedGame(t, env, g)

	if r.GetAccessLevel(owner, g.ID) != AccessAdmin {
		t.Errorf("Owner should have admin access")
	}
	if r.GetAccessLevel(viewer, g.ID) != AccessRead {
		t.Errorf("Viewer should have read access")
	}
	if r.GetAccessLevel("other@example.com", g.ID) != AccessNone {
		t.Errorf("Other should NOT have access")
	}

	g.Permissions.Users = map[string]string{}
	saveIndexedGame(t, env, g)

	if r.GetAccessLevel(viewer, g.ID) != AccessNone {
		t.Errorf("Viewer should NOT have access after removal")
	}

	if err := env.gs.DeleteGame(g.ID); err != nil {
		t.Fatal(err)
	}
	r.DeleteGame(g.ID)
	if r.GameExists(g.ID) || r.GetAccessLevel(owner, g.ID) != AccessNone {
		t.Errorf("Deleted game should not be accessible")
	}
}

func TestRegistry_Rebuild(t *testing.T) {
	tmpDir := t.TempDir()
	s := storage.New(tmpDir, nil)
	gs := NewGameStore(tmpDir, s)
	ts := NewTeamStore(tmpDir, s)
	tms := NewTournamentStore(tmpDir, s)

	owner := "owner@example.com"
	g := NewGame(owner)
	gs.SaveGame(g)
	deleted := NewGame(owner)
	gs.SaveGame(deleted)
	gs.DeleteGame(deleted.ID)
	team := NewTeam("Sluggers", owner)
	ts.SaveTeam(team)
	tm := NewTournament("Cup", owner)
	tms.SaveTournament(tm)

	r := NewRegistry(gs, ts, tms, s)
	defer r.StopGC()

	if !r.GameExists(g.ID) || r.GetAccessLevel(owner, g.ID) != AccessAdmin {
		t.Errorf("Owner should have access after rebuild")
	}
	if r.GameExists(deleted.ID) || !r.IsGameDeleted(deleted.ID) {
		t.Errorf("Tombstone should be known but not live")
	}
	if !r.TeamExists(team.ID) {
		t.Errorf("Team missing after rebuild")
	}
	if r.CountTotalGames() != 1 || r.CountTotalTeams() != 1 || r.CountTotalTournaments() != 1 {
		t.Errorf("Unexpected counts %d/%d/%d", r.CountTotalGames(), r.CountTotalTeams(), r.CountTotalTournaments())
	}
	if n := r.CountOwnedGames("Owner@example.com"); n != 1 {
		t.Errorf("CountOwnedGames = %d, want 1", n)
	}
}

func TestRegistry_TeamAccess(t *testing.T) {
	env := newTestEnv(t)
	r := env.reg

	owner := "owner@example.com"
	member := "member@example.com"

	team := NewTeam("Sluggers", owner)
	team.Roles.Scorekeepers = []string{member}
	env.ts.SaveTeam(team)
	r.UpdateTeam(team)

	g := NewGame(owner, engine.WithTeams(engine.TeamRef{ID: team.ID, Name: team.Name}, engine.TeamRef{Name: "Away"}))
	saveIndexedGame(t, env, g)

	if r.GetAccessLevel(member, g.ID) != AccessWrite {
		t.Errorf("Team scorekeeper should have write access to game linked to team")
	}
	if ids := r.GamesForTeam(team.ID); !slices.Equal(ids, []string{g.ID}) {
		t.Errorf("GamesForTeam = %v", ids)
	}

	team.Roles.Scorekeepers = []string{}
	env.ts.SaveTeam(team)
	r.UpdateTeam(team)

	if r.GetAccessLevel(member, g.ID) != AccessNone {
		t.Errorf("Removed team member should NOT have access to game")
	}
}

func TestRegistry_ListGames(t *testing.T) {
	env := newTestEnv(t)
	r := env.reg
	user := "user@example.com"

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	orig := engine.Now
	defer func() { engine.Now = orig }()

	newGame := func(day int, home, away string) *Game {
		engine.Now = func() time.Time { return base.AddDate(0, 0, day) }
		g := NewGame(user, engine.WithTeams(engine.TeamRef{Name: home}, engine.TeamRef{Name: away}))
		saveIndexedGame(t, env, g)
		return g
	}
	g1 := newGame(0, "Sluggers", "Bombers")
	g2 := newGame(1, "Aces", "Sluggers")
	g3 := newGame(2, "Comets", "Aces")
	g3.End()
	saveIndexedGame(t, env, g3)

	other := NewGame("other@example.com")
	saveIndexedGame(t, env, other)

	t.Run("DefaultNewestFirst", func(t *testing.T) {
		got := r.ListGames(user, "", "", "")
		if want := []string{g3.ID, g2.ID, g1.ID}; !slices.Equal(got, want) {
			t.Errorf("ListGames = %v, want %v", got, want)
		}
	})
	t.Run("SortByHome", func(t *testing.T) {
		got := r.ListGames(user, "home", "", "")
		if want := []string{g2.ID, g3.ID, g1.ID}; !slices.Equal(got, want) {
			t.Errorf("ListGames = %v, want %v", got, want)
		}
	})
	t.Run("FreeText", func(t *testing.T) {
		got := r.ListGames(user, "created", "asc", "sluggers")
		if want := []string{g1.ID, g2.ID}; !slices.Equal(got, want) {
			t.Errorf("ListGames = %v, want %v", got, want)
		}
	})
	t.Run("Filters", func(t *testing.T) {
		if got := r.ListGames(user, "", "", "is:final"); !slices.Equal(got, []string{g3.ID}) {
			t.Errorf("is:final = %v", got)
		}
		if got := r.ListGames(user, "", "", "home:aces"); !slices.Equal(got, []string{g2.ID}) {
			t.Errorf("home:aces = %v", got)
		}
		if got := r.ListGames(user, "", "", "date:2026-05-02"); !slices.Equal(got, []string{g2.ID}) {
			t.Errorf("date:2026-05-02 = %v", got)
		}
	})
	t.Run("AccessFiltered", func(t *testing.T) {
		if got := r.ListGames("stranger@example.com", "", "", ""); len(got) != 0 {
			t.Errorf("Stranger should see nothing, got %v", got)
		}
		other.Permissions.Public = PermissionRead
		saveIndexedGame(t, env, other)
		if got := r.ListGames("stranger@example.com", "", "", ""); !slices.Equal(got, []string{other.ID}) {
			t.Errorf("Stranger should see the public game, got %v", got)
		}
	})
}

func TestRegistry_ListTeamsAndTournaments(t *testing.T) {
	env := newTestEnv(t)
	r := env.reg
	user := "user@example.com"

	for _, name := range []string{"Comets", "aces", "Bombers"} {
		team := NewTeam(name, user)
		env.ts.SaveTeam(team)
		r.UpdateTeam(team)
	}
	hidden := NewTeam("Hidden", "other@example.com")
	env.ts.SaveTeam(hidden)
	r.UpdateTeam(hidden)

	ids := r.ListTeams(user, "", "", "")
	var names []string
	for _, id := range ids {
		m, _ := r.teamMeta(id)
		names = append(names, m.Name)
	}
	if want := []string{"aces", "Bombers", "Comets"}; !slices.Equal(names, want) {
		t.Errorf("ListTeams names = %v, want %v", names, want)
	}
	if got := r.ListTeams(user, "", "", "name:bomb"); len(got) != 1 {
		t.Errorf("name:bomb = %v", got)
	}

	older := NewTournament("Spring", user)
	older.StartDate = "2026-03-01T00:00:00Z"
	newer := NewTournament("Summer", user)
	newer.StartDate = "2026-06-01T00:00:00Z"
	for _, tm := range []*Tournament{older, newer} {
		env.tms.SaveTournament(tm)
		r.UpdateTournament(tm)
	}
	got := r.ListTournaments(user)
	if len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("ListTournaments order wrong: %v", got)
	}
	if len(r.ListTournaments("other@example.com")) != 0 {
		t.Error("Private tournaments should be hidden")
	}
}
