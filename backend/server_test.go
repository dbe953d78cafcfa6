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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ttbt-io/wiffkeeper/backend/engine"
)

type testServer struct {
	*testEnv
	URL string
}

// newTestServer starts an httptest server with mock auth on fresh storage.
func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	env := newTestEnv(t)
	opts.DataDir = env.dir
	opts.Storage = env.s
	opts.GameStore = env.gs
	opts.TeamStore = env.ts
	opts.TournamentStore = env.tms
	opts.Registry = env.reg
	opts.UseMockAuth = true

	srv := httptest.NewServer(NewServerHandler(opts))
	t.Cleanup(srv.Close)
	return &testServer{testEnv: env, URL: srv.URL}
}

// do sends a request as user. A string body is sent verbatim, anything
// else is JSON encoded.
func (h *testServer) do(t *testing.T, method, path, user string, body any, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if user != "" {
		req.AddCookie(&http.Cookie{Name: "mock_auth_user", Value: user})
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func readJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", resp.Request.URL.Path, err)
	}
	return v
}

type actionResult struct {
	Applied bool `json:"applied"`
	Game    Game `json:"game"`
}

func (h *testServer) newGame(t *testing.T, user string, setup GameSetup) *Game {
	t.Helper()
	resp := h.do(t, "POST", "/api/new-game", user, setup)
	expectStatus(t, resp, http.StatusCreated)
	g := readJSON[Game](t, resp)
	return &g
}

func (h *testServer) action(t *testing.T, user, gameId string, cmd Command) actionResult {
	t.Helper()
	resp := h.do(t, "POST", "/api/action", user, map[string]any{"gameId": gameId, "command": cmd})
	expectStatus(t, resp, http.StatusOK)
	return readJSON[actionResult](t, resp)
}

func TestHTTPHandlers(t *testing.T) {
	h := newTestServer(t, Options{})
	owner := "owner@example.com"
	stranger := "stranger@example.com"

	g := h.newGame(t, owner, GameSetup{
		Home: engine.TeamRef{Name: "Sluggers"},
		Away: engine.TeamRef{Name: "Aces", Players: []string{"Ann", "Bo"}},
	})
	if g.OwnerID != owner || g.Home.Name != "Sluggers" || g.State.BattingTeam != engine.Away {
		t.Fatalf("Unexpected new game: %+v", g)
	}

	t.Run("SecurityHeaders", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/load/"+g.ID, owner, nil)
		expectStatus(t, resp, http.StatusOK)
		if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("X-Frame-Options = %q", got)
		}
		if got := resp.Header.Get("Cache-Control"); !strings.Contains(got, "no-cache") {
			t.Errorf("Cache-Control = %q", got)
		}
	})

	t.Run("NewGameValidation", func(t *testing.T) {
		expectStatus(t, h.do(t, "POST", "/api/new-game", "", GameSetup{}), http.StatusForbidden)
		expectStatus(t, h.do(t, "POST", "/api/new-game", owner, "{"), http.StatusBadRequest)
		expectStatus(t, h.do(t, "POST", "/api/new-game", owner, GameSetup{Settings: engine.Settings{Innings: 50}}), http.StatusBadRequest)
		expectStatus(t, h.do(t, "POST", "/api/new-game", owner, GameSetup{Home: engine.TeamRef{ID: uuid.NewString()}}), http.StatusNotFound)
	})

	t.Run("LoadWithETag", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/load/"+g.ID, owner, nil)
		expectStatus(t, resp, http.StatusOK)
		etag := resp.Header.Get("ETag")
		if etag == "" {
			t.Fatal("Missing ETag")
		}
		loaded := readJSON[Game](t, resp)
		if loaded.ID != g.ID {
			t.Errorf("Loaded %s, want %s", loaded.ID, g.ID)
		}
		resp = h.do(t, "GET", "/api/load/"+g.ID, owner, nil, "If-None-Match", etag)
		expectStatus(t, resp, http.StatusNotModified)

		expectStatus(t, h.do(t, "GET", "/api/load/"+g.ID, stranger, nil), http.StatusForbidden)
		expectStatus(t, h.do(t, "GET", "/api/load/not-a-uuid", owner, nil), http.StatusBadRequest)
		expectStatus(t, h.do(t, "GET", "/api/load/"+uuid.NewString(), owner, nil), http.StatusNotFound)
	})

	t.Run("Actions", func(t *testing.T) {
		res := h.action(t, owner, g.ID, Command{ID: uuid.NewString(), Type: CmdSingle})
		if !res.Applied || res.Game.State.Bases.First != "Ann" {
			t.Fatalf("Single not applied: %+v", res.Game.State)
		}

		cmd := Command{ID: uuid.NewString(), Type: CmdRun, Runs: 2}
		res = h.action(t, owner, g.ID, cmd)
		if !res.Applied || res.Game.State.Total.Away != 2 {
			t.Fatalf("Run not applied: %+v", res.Game.State.Total)
		}
		// Resending the same command id is a no-op.
		res = h.action(t, owner, g.ID, cmd)
		if res.Applied || res.Game.State.Total.Away != 2 {
			t.Errorf("Duplicate command applied: %+v", res.Game.State.Total)
		}

		body := map[string]any{"gameId": g.ID, "command": Command{Type: "teleport"}}
		expectStatus(t, h.do(t, "POST", "/api/action", owner, body), http.StatusBadRequest)
		body = map[string]any{"gameId": g.ID, "command": Command{Type: CmdRun}}
		expectStatus(t, h.do(t, "POST", "/api/action", owner, body), http.StatusBadRequest)
		body = map[string]any{"gameId": g.ID, "command": Command{Type: CmdStrike}}
		expectStatus(t, h.do(t, "POST", "/api/action", stranger, body), http.StatusForbidden)

		stored, err := h.gs.LoadGame(g.ID)
		if err != nil {
			t.Fatalf("LoadGame: %v", err)
		}
		if stored.State.Total.Away != 2 || stored.LastCommandID != cmd.ID {
			t.Errorf("Applied commands not persisted: total=%+v last=%s", stored.State.Total, stored.LastCommandID)
		}
	})

	t.Run("BoxScoreAndFeed", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/boxscore/"+g.ID, owner, nil)
		expectStatus(t, resp, http.StatusOK)
		box := readJSON[engine.BoxScore](t, resp)
		if box.Away.Runs != 2 || box.Away.Hits != 1 || box.Away.Name != "Aces" {
			t.Errorf("Unexpected box score: %+v", box.Away)
		}

		resp = h.do(t, "GET", "/api/boxscore/"+g.ID+"?format=text", owner, nil)
		expectStatus(t, resp, http.StatusOK)
		text, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(text), "Aces") {
			t.Errorf("Text box score missing team: %s", text)
		}

		resp = h.do(t, "GET", "/api/feed/"+g.ID, owner, nil)
		expectStatus(t, resp, http.StatusOK)
		feed, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(feed), "hits a single") {
			t.Errorf("Feed missing single: %s", feed)
		}
	})

	t.Run("ListGames", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/list-games", owner, nil)
		expectStatus(t, resp, http.StatusOK)
		list := readJSON[listResponse[GameMetadata]](t, resp)
		if list.Meta.Total != 1 || len(list.Data) != 1 || list.Data[0].AwayScore != 2 {
			t.Errorf("Unexpected list: %+v", list)
		}

		resp = h.do(t, "GET", "/api/list-games", stranger, nil)
		expectStatus(t, resp, http.StatusOK)
		if list := readJSON[listResponse[GameMetadata]](t, resp); list.Meta.Total != 0 {
			t.Errorf("Stranger sees %d games", list.Meta.Total)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		expectStatus(t, h.do(t, "POST", "/api/delete-game", stranger, map[string]string{"id": g.ID}), http.StatusForbidden)
		expectStatus(t, h.do(t, "POST", "/api/delete-game", owner, map[string]string{"id": g.ID}), http.StatusOK)
		expectStatus(t, h.do(t, "POST", "/api/delete-game", owner, map[string]string{"id": g.ID}), http.StatusOK)
		expectStatus(t, h.do(t, "GET", "/api/load/"+g.ID, owner, nil), http.StatusNotFound)

		resp := h.do(t, "POST", "/api/list-games", owner, map[string]any{"knownIds": []string{g.ID}})
		expectStatus(t, resp, http.StatusOK)
		list := readJSON[listResponse[GameMetadata]](t, resp)
		if len(list.Data) != 1 || list.Data[0].ID != g.ID || list.Data[0].Status != StatusDeleted {
			t.Errorf("Known deleted game not reported: %+v", list.Data)
		}
	})
}

func TestTeamsAPI(t *testing.T) {
	h := newTestServer(t, Options{})
	owner := "coach@example.com"
	scorer := "scorer@example.com"

	resp := h.do(t, "POST", "/api/save-team", owner, Team{
		Name:    "Sluggers",
		Players: []Player{{Name: "Ann", Number: 7}, {Name: "Bo", Number: 12}},
		Roles:   TeamRoles{Scorekeepers: []string{"Scorer@Example.com"}},
	})
	expectStatus(t, resp, http.StatusOK)
	team := readJSON[Team](t, resp)
	if !isValidUUID(team.ID) || team.OwnerID != owner || len(team.Players) != 2 || team.Players[0].ID == "" {
		t.Fatalf("Unexpected saved team: %+v", team)
	}
	if team.Roles.Scorekeepers[0] != scorer {
		t.Errorf("Roles not normalized: %v", team.Roles.Scorekeepers)
	}

	t.Run("Validation", func(t *testing.T) {
		expectStatus(t, h.do(t, "POST", "/api/save-team", owner, Team{}), http.StatusBadRequest)
		expectStatus(t, h.do(t, "POST", "/api/save-team", owner, Team{Name: "X", Roles: TeamRoles{Admins: []string{"nope"}}}), http.StatusBadRequest)
	})

	t.Run("Load", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/load-team/"+team.ID, scorer, nil)
		expectStatus(t, resp, http.StatusOK)
		if got := readJSON[Team](t, resp); got.Name != "Sluggers" {
			t.Errorf("Loaded %+v", got)
		}
		expectStatus(t, h.do(t, "GET", "/api/load-team/"+team.ID, "other@example.com", nil), http.StatusForbidden)
	})

	t.Run("RoleChangesNeedAdmin", func(t *testing.T) {
		edit := team
		edit.Roles.Spectators = []string{"fan@example.com"}
		expectStatus(t, h.do(t, "POST", "/api/save-team", scorer, edit), http.StatusForbidden)

		edit = team
		edit.Name = "Sluggers II"
		resp := h.do(t, "POST", "/api/save-team", scorer, edit)
		expectStatus(t, resp, http.StatusOK)
		if got := readJSON[Team](t, resp); got.OwnerID != owner || got.Name != "Sluggers II" {
			t.Errorf("Scorekeeper edit lost owner or name: %+v", got)
		}
	})

	t.Run("List", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/list-teams", scorer, nil)
		expectStatus(t, resp, http.StatusOK)
		list := readJSON[listResponse[TeamMetadata]](t, resp)
		if list.Meta.Total != 1 || list.Data[0].Players != 2 {
			t.Errorf("Unexpected team list: %+v", list)
		}
	})

	t.Run("GameAndStats", func(t *testing.T) {
		g := h.newGame(t, scorer, GameSetup{
			Away: engine.TeamRef{ID: team.ID},
			Home: engine.TeamRef{Name: "Visitors"},
		})
		if g.Away.Name != "Sluggers II" || len(g.Away.Players) != 2 || g.Away.Players[0] != team.Players[0].ID {
			t.Fatalf("Lineup not filled from roster: %+v", g.Away)
		}
		h.action(t, scorer, g.ID, Command{Type: CmdDouble})
		h.action(t, scorer, g.ID, Command{Type: CmdHomeRun})

		resp := h.do(t, "GET", "/api/team-stats/"+team.ID, owner, nil)
		expectStatus(t, resp, http.StatusOK)
		ts := readJSON[TeamStats](t, resp)
		if ts.Totals.Games != 1 || ts.Totals.Runs != 2 {
			t.Errorf("Unexpected totals: %+v", ts.Totals)
		}
		if len(ts.Players) != 2 || ts.Players[0].Games.Doubles != 1 || ts.Players[1].Games.HomeRuns != 1 {
			t.Errorf("Unexpected player lines: %+v", ts.Players)
		}

		patch := map[string]any{
			"playerId": team.Players[0].ID,
			"stats":    map[string]any{"batting": map[string]any{"atBats": 4, "hits": 2}},
		}
		resp = h.do(t, "POST", "/api/team-stats/"+team.ID, scorer, patch)
		expectStatus(t, resp, http.StatusOK)
		p := readJSON[Player](t, resp)
		if p.Stats.Batting.Average != 0.5 {
			t.Errorf("Average = %v, want 0.5", p.Stats.Batting.Average)
		}
		patch["playerId"] = uuid.NewString()
		expectStatus(t, h.do(t, "POST", "/api/team-stats/"+team.ID, scorer, patch), http.StatusNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		expectStatus(t, h.do(t, "POST", "/api/delete-team", scorer, map[string]string{"id": team.ID}), http.StatusForbidden)
		expectStatus(t, h.do(t, "POST", "/api/delete-team", owner, map[string]string{"id": team.ID}), http.StatusOK)
		expectStatus(t, h.do(t, "GET", "/api/load-team/"+team.ID, owner, nil), http.StatusNotFound)
		// Deleted ids cannot be reused.
		expectStatus(t, h.do(t, "POST", "/api/save-team", owner, Team{ID: team.ID, Name: "Again"}), http.StatusForbidden)
	})
}

func TestTournamentsAPI(t *testing.T) {
	h := newTestServer(t, Options{})
	owner := "director@example.com"

	resp := h.do(t, "POST", "/api/save-tournament", owner, map[string]any{
		"name":  "Summer Cup",
		"teams": []map[string]string{{"name": "Sluggers"}},
	})
	expectStatus(t, resp, http.StatusOK)
	tm := readJSON[Tournament](t, resp)
	if tm.OwnerID != owner || len(tm.Teams) != 1 || tm.Teams[0].ID == "" {
		t.Fatalf("Unexpected tournament: %+v", tm)
	}

	expectStatus(t, h.do(t, "POST", "/api/tournament/brackets", owner, map[string]any{"id": tm.ID}), http.StatusBadRequest)

	resp = h.do(t, "POST", "/api/save-tournament", owner, map[string]any{
		"id":    tm.ID,
		"teams": []any{tm.Teams[0], map[string]string{"name": "Aces"}},
	})
	expectStatus(t, resp, http.StatusOK)
	tm = readJSON[Tournament](t, resp)
	if tm.Name != "Summer Cup" || len(tm.Teams) != 2 {
		t.Fatalf("Edit lost fields: %+v", tm)
	}
	expectStatus(t, h.do(t, "POST", "/api/save-tournament", "other@example.com", map[string]any{"id": tm.ID, "name": "Hijack"}), http.StatusForbidden)

	seed := 42
	resp = h.do(t, "POST", "/api/tournament/brackets", owner, map[string]any{"id": tm.ID, "seed": seed})
	expectStatus(t, resp, http.StatusOK)
	tm = readJSON[Tournament](t, resp)
	if len(tm.Brackets.Rounds) != 1 || len(tm.Brackets.Rounds[0].Games) != 1 {
		t.Fatalf("Unexpected brackets: %+v", tm.Brackets)
	}
	final := tm.Brackets.Rounds[0].Games[0]

	g := h.newGame(t, owner, GameSetup{
		Home:       engine.TeamRef{Name: "Sluggers"},
		Away:       engine.TeamRef{Name: "Aces"},
		Tournament: engine.TournamentLink{ID: tm.ID, Round: 1, GameNumber: 1},
	})
	h.action(t, owner, g.ID, Command{Type: CmdRun, Runs: 3})

	t.Run("AdvanceNeedsDecidedGame", func(t *testing.T) {
		resp := h.do(t, "POST", "/api/tournament/advance", owner, map[string]any{"id": tm.ID, "matchupId": final.ID})
		expectStatus(t, resp, http.StatusBadRequest)
	})

	h.action(t, owner, g.ID, Command{Type: CmdEnd})

	t.Run("Standings", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/tournament/standings/"+tm.ID, owner, nil)
		expectStatus(t, resp, http.StatusOK)
		body := readJSON[struct {
			Standings []struct {
				Team struct{ Name string } `json:"team"`
				Wins int                   `json:"wins"`
			} `json:"standings"`
		}](t, resp)
		if len(body.Standings) != 2 || body.Standings[0].Team.Name != "Aces" || body.Standings[0].Wins != 1 {
			t.Errorf("Unexpected standings: %+v", body.Standings)
		}
	})

	t.Run("AdvanceFromGame", func(t *testing.T) {
		resp := h.do(t, "POST", "/api/tournament/advance", owner, map[string]any{"id": tm.ID, "matchupId": final.ID})
		expectStatus(t, resp, http.StatusOK)
		got := readJSON[Tournament](t, resp)
		m := got.Brackets.Rounds[0].Games[0]
		if m.GameID != g.ID || m.Winner == nil || m.Winner.Name != "Aces" || got.Status != "completed" {
			t.Errorf("Unexpected matchup after advance: %+v status=%s", m, got.Status)
		}
		resp = h.do(t, "POST", "/api/tournament/advance", owner, map[string]any{"id": tm.ID, "matchupId": final.ID})
		expectStatus(t, resp, http.StatusConflict)
	})

	t.Run("List", func(t *testing.T) {
		resp := h.do(t, "GET", "/api/list-tournaments", owner, nil)
		expectStatus(t, resp, http.StatusOK)
		list := readJSON[listResponse[TournamentSummary]](t, resp)
		if list.Meta.Total != 1 || list.Data[0].Progress.Percentage != 100 {
			t.Errorf("Unexpected list: %+v", list)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		expectStatus(t, h.do(t, "POST", "/api/delete-tournament", owner, map[string]string{"id": tm.ID}), http.StatusOK)
		expectStatus(t, h.do(t, "GET", "/api/load-tournament/"+tm.ID, owner, nil), http.StatusNotFound)
	})
}

func TestMeAndAdmin(t *testing.T) {
	admin := "root@example.com"
	h := newTestServer(t, Options{BootstrapAdmin: admin})
	user := "user@example.com"

	resp := h.do(t, "GET", "/api/me", user, nil)
	expectStatus(t, resp, http.StatusOK)
	me := readJSON[map[string]any](t, resp)
	if me["id"] != user || me["allowed"] != true || me["isAdmin"] != false {
		t.Errorf("Unexpected /api/me: %v", me)
	}
	expectStatus(t, h.do(t, "GET", "/api/me", "", nil), http.StatusForbidden)

	expectStatus(t, h.do(t, "GET", "/api/admin/policy", user, nil), http.StatusForbidden)
	expectStatus(t, h.do(t, "GET", "/api/admin/metrics", user, nil), http.StatusForbidden)

	resp = h.do(t, "GET", "/api/admin/policy", admin, nil)
	expectStatus(t, resp, http.StatusOK)
	if p := readJSON[UserAccessPolicy](t, resp); p.DefaultPolicy != PolicyAllow {
		t.Errorf("Default policy = %q", p.DefaultPolicy)
	}

	expectStatus(t, h.do(t, "POST", "/api/admin/policy", admin, UserAccessPolicy{DefaultPolicy: "maybe"}), http.StatusBadRequest)
	expectStatus(t, h.do(t, "POST", "/api/admin/policy", admin, UserAccessPolicy{
		DefaultPolicy:      PolicyDeny,
		DefaultDenyMessage: "closed beta",
	}), http.StatusOK)

	resp = h.do(t, "POST", "/api/new-game", user, GameSetup{})
	expectStatus(t, resp, http.StatusForbidden)
	if body, _ := io.ReadAll(resp.Body); !strings.Contains(string(body), "closed beta") {
		t.Errorf("Deny message missing: %s", body)
	}
	h.newGame(t, admin, GameSetup{})

	resp = h.do(t, "GET", "/api/admin/metrics", admin, nil)
	expectStatus(t, resp, http.StatusOK)
	if m := readJSON[MetricsStore](t, resp); m.Series == nil {
		t.Errorf("Metrics missing series")
	}
}

func TestMockSSO(t *testing.T) {
	h := newTestServer(t, Options{})

	resp := h.do(t, "POST", "/.sso/", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if body, _ := io.ReadAll(resp.Body); strings.TrimSpace(string(body)) != "null" {
		t.Errorf("Anonymous status = %s", body)
	}

	resp = h.do(t, "POST", "/.sso/", "a@example.com", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := readJSON[map[string]string](t, resp); got["email"] != "a@example.com" {
		t.Errorf("Status = %v", got)
	}

	resp = h.do(t, "GET", "/api/login", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if c := resp.Cookies(); len(c) == 0 || c[0].Name != "mock_auth_user" {
		t.Errorf("Login did not set the mock cookie")
	}
}

func TestStartServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	dir := t.TempDir()
	srv, err := StartServer(Options{DataDir: dir, Listener: ln, UseMockAuth: true})
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	req, _ := http.NewRequest("GET", "http://"+ln.Addr().String()+"/api/me", nil)
	req.AddCookie(&http.Cookie{Name: "mock_auth_user", Value: "a@example.com"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestConcurrentActions(t *testing.T) {
	h := newTestServer(t, Options{})
	owner := "owner@example.com"
	g := h.newGame(t, owner, GameSetup{Settings: engine.Settings{MercyRule: 100}})

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{"gameId": g.ID, "command": Command{ID: uuid.NewString(), Type: CmdRun, Runs: 1}})
			req, _ := http.NewRequest("POST", h.URL+"/api/action", bytes.NewReader(body))
			req.AddCookie(&http.Cookie{Name: "mock_auth_user", Value: owner})
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Errorf("action: %v", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
				t.Errorf("action status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	resp := h.do(t, "GET", "/api/load/"+g.ID, owner, nil)
	expectStatus(t, resp, http.StatusOK)
	loaded := readJSON[Game](t, resp)
	runs := 0
	for _, ev := range loaded.State.Events {
		if ev.Type == engine.EventRun {
			runs += ev.Runs
		}
	}
	if runs != loaded.State.Total.Away || runs == 0 {
		t.Errorf("Event log has %d runs, total is %d", runs, loaded.State.Total.Away)
	}
}
