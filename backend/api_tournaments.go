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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ttbt-io/wiffkeeper/backend/engine"
	"github.com/ttbt-io/wiffkeeper/backend/tournament"
)

const maxTournamentTeams = 64

func validatePermissions(p Permissions) error {
	if p.Public != "" && p.Public != PermissionNone && p.Public != PermissionRead {
		return fmt.Errorf("invalid public permission %q", p.Public)
	}
	for u, role := range p.Users {
		if !isValidEmail(u) {
			return fmt.Errorf("invalid email %q", u)
		}
		if role != PermissionRead && role != PermissionWrite {
			return fmt.Errorf("invalid role %q for %s", role, u)
		}
	}
	return nil
}

func validateTournament(t *Tournament) error {
	if t.ID != "" && !isValidUUID(t.ID) {
		return fmt.Errorf("invalid tournament id: %s", t.ID)
	}
	if err := validateStringLen(t.Name, maxNameLen, "name"); err != nil {
		return err
	}
	if len(t.Teams) > maxTournamentTeams {
		return fmt.Errorf("too many teams (max %d)", maxTournamentTeams)
	}
	seen := map[string]bool{}
	for _, team := range t.Teams {
		if team.Name == "" {
			return errors.New("team name is required")
		}
		if err := validateStringLen(team.Name, maxNameLen, "team name"); err != nil {
			return err
		}
		if team.ID != "" {
			if seen[team.ID] {
				return fmt.Errorf("duplicate team id: %s", team.ID)
			}
			seen[team.ID] = true
		}
	}
	if t.Settings.MaxTeams < 0 || t.Settings.MaxTeams > maxTournamentTeams {
		return errors.New("settings out of range")
	}
	return validatePermissions(t.Permissions)
}

// applyEdits copies the user-editable fields of in into t. The bracket and
// game list are managed by the server.
func applyEdits(t, in *Tournament) {
	if in.Name != "" {
		t.Name = in.Name
	}
	if in.Season != 0 {
		t.Season = in.Season
	}
	if in.StartDate != "" {
		t.StartDate = in.StartDate
	}
	if in.EndDate != "" {
		t.EndDate = in.EndDate
	}
	t.Teams = make([]tournament.Team, 0, len(in.Teams))
	for _, team := range in.Teams {
		if team.ID == "" {
			team.ID = uuid.NewString()
		}
		t.Teams = append(t.Teams, team)
	}
	if in.Settings.MaxTeams > 0 {
		t.Settings = in.Settings
	}
}

func (a *api) handleSaveTournament(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	var in Tournament
	if !decodeBody(w, r, &in) {
		return
	}
	if err := validateTournament(&in); err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	var t *Tournament
	existing, err := a.tournaments.LoadTournament(in.ID)
	switch {
	case in.ID != "" && err == nil:
		if existing.IsDeleted() {
			http.Error(w, "Forbidden: tournament was deleted", http.StatusForbidden)
			return
		}
		access := GetTournamentAccess(userId, *existing)
		if access < AccessWrite {
			writeError(w, "tournament", ErrForbidden)
			return
		}
		t = existing
		if access >= AccessAdmin && in.Permissions.Users != nil {
			t.Permissions = in.Permissions
		}
	case in.ID == "" || errors.Is(err, os.ErrNotExist):
		if err := a.accessControl.CheckTournamentQuota(userId, a.registry.CountOwnedTournaments(userId)); err != nil {
			http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
			return
		}
		t = NewTournament(in.Name, userId)
		if in.ID != "" {
			t.ID = in.ID
		}
		t.Permissions = in.Permissions
	default:
		writeError(w, "tournament", err)
		return
	}
	applyEdits(t, &in)
	users := make(map[string]string, len(t.Permissions.Users))
	for u, role := range t.Permissions.Users {
		users[normalizeEmail(u)] = role
	}
	t.Permissions.Users = users
	t.normalize()

	if !a.saveTournament(w, t) {
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) saveTournament(w http.ResponseWriter, t *Tournament) bool {
	if err := a.tournaments.SaveTournament(t); err != nil {
		log.Printf("Error saving tournament %s: %v", t.ID, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}
	a.registry.UpdateTournament(t)
	return true
}

// loadTournament returns the live tournament with this id if userId has at
// least the given access. It writes the error response itself.
func (a *api) loadTournament(w http.ResponseWriter, userId, id string, want AccessLevel) (*Tournament, bool) {
	if !isValidUUID(id) {
		http.Error(w, "Bad Request: Invalid Tournament ID", http.StatusBadRequest)
		return nil, false
	}
	t, err := a.tournaments.LoadTournament(id)
	if err == nil && t.IsDeleted() {
		err = os.ErrNotExist
	}
	if err != nil {
		writeError(w, "tournament", err)
		return nil, false
	}
	if GetTournamentAccess(userId, *t) < want {
		writeError(w, "tournament", ErrForbidden)
		return nil, false
	}
	return t, true
}

func (a *api) handleLoadTournament(w http.ResponseWriter, r *http.Request) {
	t, ok := a.loadTournament(w, getUserID(r), r.PathValue("id"), AccessRead)
	if !ok {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		writeError(w, "tournament", err)
		return
	}
	writeCached(w, r, "application/json", data)
}

// TournamentSummary is one entry of the tournament list.
type TournamentSummary struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Season    int                 `json:"season"`
	StartDate string              `json:"startDate"`
	Status    string              `json:"status"`
	OwnerID   string              `json:"ownerId"`
	Teams     int                 `json:"teams"`
	Progress  tournament.Progress `json:"progress"`
}

func (a *api) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	limit, offset, _, _, _ := parsePagination(r)
	all := a.registry.ListTournaments(userId)
	out := make([]TournamentSummary, 0, limit)
	for _, t := range page(all, offset, limit) {
		out = append(out, TournamentSummary{
			ID:        t.ID,
			Name:      t.Name,
			Season:    t.Season,
			StartDate: t.StartDate,
			Status:    t.Status,
			OwnerID:   t.OwnerID,
			Teams:     len(t.Teams),
			Progress:  tournament.GetProgress(&t.Tournament),
		})
	}
	writeJSON(w, http.StatusOK, listResponse[TournamentSummary]{
		Data: out,
		Meta: listMeta{Total: len(all), Offset: offset, Limit: limit},
	})
}

func (a *api) handleDeleteTournament(w http.ResponseWriter, r *http.Request) {
	userId := requireUser(w, r)
	if userId == "" {
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	t, ok := a.loadTournament(w, userId, body.ID, AccessAdmin)
	if !ok {
		return
	}
	if err := a.tournaments.DeleteTournament(t.ID); err != nil {
		writeError(w, "tournament", err)
		return
	}
	a.registry.DeleteTournament(t.ID)
	log.Printf("Tournament %s deleted by %s", t.ID, maskEmail(userId))
	w.WriteHeader(http.StatusOK)
}

func (a *api) handleBrackets(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	var body struct {
		ID   string  `json:"id"`
		Seed *uint64 `json:"seed,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	t, ok := a.loadTournament(w, userId, body.ID, AccessWrite)
	if !ok {
		return
	}
	if len(t.Teams) < 2 {
		http.Error(w, "Bad Request: at least two teams are required", http.StatusBadRequest)
		return
	}
	seed := uint64(time.Now().UnixNano())
	if body.Seed != nil {
		seed = *body.Seed
	}
	tournament.GenerateBrackets(&t.Tournament, rand.New(rand.NewPCG(seed, seed>>1)))
	t.Status = tournament.StatusUpcoming
	t.EndDate = ""
	if !a.saveTournament(w, t) {
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) handleAdvance(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	var body struct {
		ID        string `json:"id"`
		MatchupID string `json:"matchupId"`
		WinnerID  string `json:"winnerId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	t, ok := a.loadTournament(w, userId, body.ID, AccessWrite)
	if !ok {
		return
	}
	m := t.Find(body.MatchupID)
	if m == nil {
		http.Error(w, "Not Found: matchup not found", http.StatusNotFound)
		return
	}
	winnerID := body.WinnerID
	if winnerID == "" && m.GameID != "" {
		if g, err := a.games.LoadGame(m.GameID); err == nil && !g.IsDeleted() {
			winnerID = gameWinner(t, g)
		}
	}
	if winnerID == "" {
		http.Error(w, "Bad Request: winner is required", http.StatusBadRequest)
		return
	}
	winner, loser, ok := pickWinner(m, winnerID)
	if !ok || !tournament.Advance(&t.Tournament, m.ID, winner, loser) {
		http.Error(w, "Conflict: matchup cannot be advanced", http.StatusConflict)
		return
	}
	if !a.saveTournament(w, t) {
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func pickWinner(m *tournament.Matchup, winnerID string) (winner, loser tournament.Team, ok bool) {
	switch {
	case m.Team1 != nil && m.Team1.ID == winnerID:
		winner = *m.Team1
		if m.Team2 != nil {
			loser = *m.Team2
		}
	case m.Team2 != nil && m.Team2.ID == winnerID:
		winner = *m.Team2
		if m.Team1 != nil {
			loser = *m.Team1
		}
	default:
		return winner, loser, false
	}
	return winner, loser, true
}

// entrant maps a game participant to a tournament team by id, then by name.
func entrant(t *Tournament, ref engine.TeamRef) (string, bool) {
	for _, team := range t.Teams {
		if ref.ID != "" && team.ID == ref.ID {
			return team.ID, true
		}
	}
	for _, team := range t.Teams {
		if team.Name == ref.Name {
			return team.ID, true
		}
	}
	return "", false
}

// gameWinner returns the tournament team id of the winner of a final game,
// or "" when the game is not decided.
func gameWinner(t *Tournament, g *Game) string {
	if !g.IsFinal() || g.State.Total.Home == g.State.Total.Away {
		return ""
	}
	ref := g.Away
	if g.State.Total.Home > g.State.Total.Away {
		ref = g.Home
	}
	id, _ := entrant(t, ref)
	return id
}

// tournamentResults builds standings input from the games linked to t.
func tournamentResults(t *Tournament, games []*Game) []tournament.Result {
	var results []tournament.Result
	for _, g := range games {
		home, ok1 := entrant(t, g.Home)
		away, ok2 := entrant(t, g.Away)
		if !ok1 || !ok2 {
			continue
		}
		results = append(results, tournament.Result{
			HomeID:   home,
			AwayID:   away,
			HomeRuns: g.State.Total.Home,
			AwayRuns: g.State.Total.Away,
			Final:    g.IsFinal(),
		})
	}
	return results
}

func (a *api) handleStandings(w http.ResponseWriter, r *http.Request) {
	t, ok := a.loadTournament(w, getUserID(r), r.PathValue("id"), AccessRead)
	if !ok {
		return
	}
	games := a.loadGames(a.registry.GamesForTournament(t.ID))
	writeJSON(w, http.StatusOK, struct {
		Standings []tournament.Standing `json:"standings"`
		Progress  tournament.Progress   `json:"progress"`
	}{
		Standings: tournament.Standings(t.Teams, tournamentResults(t, games)),
		Progress:  tournament.GetProgress(&t.Tournament),
	})
}
