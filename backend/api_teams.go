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
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ttbt-io/wiffkeeper/backend/engine"
	"github.com/ttbt-io/wiffkeeper/backend/stats"
)

func validateTeam(t *Team) error {
	if t.ID != "" && !isValidUUID(t.ID) {
		return fmt.Errorf("invalid team id: %s", t.ID)
	}
	if t.Name == "" {
		return errors.New("team name is required")
	}
	if err := validateStringLen(t.Name, maxNameLen, "name"); err != nil {
		return err
	}
	if len(t.Players) > maxPlayers {
		return fmt.Errorf("roster too long (max %d players)", maxPlayers)
	}
	for _, p := range t.Players {
		if p.ID != "" && !isValidUUID(p.ID) {
			return fmt.Errorf("invalid player id: %s", p.ID)
		}
		if p.Name == "" {
			return errors.New("player name is required")
		}
		if err := validateStringLen(p.Name, maxNameLen, "player name"); err != nil {
			return err
		}
		if p.Number < 0 || p.Number > 999 {
			return fmt.Errorf("invalid number %d for %s", p.Number, p.Name)
		}
	}
	for _, list := range [][]string{t.Roles.Admins, t.Roles.Scorekeepers, t.Roles.Spectators} {
		for _, email := range list {
			if !isValidEmail(email) {
				return fmt.Errorf("invalid email %q", email)
			}
		}
	}
	return nil
}

func normalizeEmails(list []string) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, normalizeEmail(e))
	}
	return out
}

func sameRoles(a, b TeamRoles) bool {
	return slices.Equal(a.Admins, b.Admins) &&
		slices.Equal(a.Scorekeepers, b.Scorekeepers) &&
		slices.Equal(a.Spectators, b.Spectators)
}

func (a *api) handleSaveTeam(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	var team Team
	if !decodeBody(w, r, &team) {
		return
	}
	if err := validateTeam(&team); err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	team.Roles = TeamRoles{
		Admins:       normalizeEmails(team.Roles.Admins),
		Scorekeepers: normalizeEmails(team.Roles.Scorekeepers),
		Spectators:   normalizeEmails(team.Roles.Spectators),
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	existing, err := a.loadTeamForSave(team.ID)
	switch {
	case err == nil:
		access := GetTeamAccess(userId, *existing)
		if access < AccessWrite {
			http.Error(w, "Forbidden: You do not have access to this team", http.StatusForbidden)
			return
		}
		if access < AccessAdmin && !sameRoles(existing.Roles, team.Roles) {
			http.Error(w, "Forbidden: Only team admins can change roles", http.StatusForbidden)
			return
		}
		team.OwnerID = existing.OwnerID
		team.CreatedAt = existing.CreatedAt
	case errors.Is(err, os.ErrNotExist):
		if err := a.accessControl.CheckTeamQuota(userId, a.registry.CountOwnedTeams(userId)); err != nil {
			http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
			return
		}
		if team.ID == "" {
			team.ID = uuid.NewString()
		}
		team.OwnerID = userId
		team.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	default:
		writeError(w, "team", err)
		return
	}

	if team.Season == 0 {
		team.Season = time.Now().UTC().Year()
	}
	team.Status = ""
	team.DeletedAt = 0
	for i := range team.Players {
		p := &team.Players[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		stats.Derive(&p.Stats)
	}
	team.normalize()

	if err := a.teams.SaveTeam(&team); err != nil {
		log.Printf("Error saving team %s: %v", team.ID, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.registry.UpdateTeam(&team)
	writeJSON(w, http.StatusOK, &team)
}

// loadTeamForSave returns the live team with this id. A new or deleted id
// is reported as os.ErrNotExist; deleted ids cannot be reused.
func (a *api) loadTeamForSave(id string) (*Team, error) {
	if id == "" {
		return nil, os.ErrNotExist
	}
	t, err := a.teams.LoadTeam(id)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted() {
		return nil, errors.Join(ErrForbidden, errors.New("team was deleted"))
	}
	return t, nil
}

// readTeam loads the team named by the {id} path value and checks that
// userId has at least the given access.
func (a *api) readTeam(w http.ResponseWriter, r *http.Request, want AccessLevel) (*Team, bool) {
	id := r.PathValue("id")
	if !isValidUUID(id) {
		http.Error(w, "Bad Request: Invalid Team ID", http.StatusBadRequest)
		return nil, false
	}
	t, err := a.teams.LoadTeam(id)
	if err == nil && t.IsDeleted() {
		err = os.ErrNotExist
	}
	if err != nil {
		writeError(w, "team", err)
		return nil, false
	}
	if GetTeamAccess(getUserID(r), *t) < want {
		writeError(w, "team", ErrForbidden)
		return nil, false
	}
	return t, true
}

func (a *api) handleLoadTeam(w http.ResponseWriter, r *http.Request) {
	t, ok := a.readTeam(w, r, AccessRead)
	if !ok {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		writeError(w, "team", err)
		return
	}
	writeCached(w, r, "application/json", data)
}

func (a *api) handleListTeams(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	limit, offset, sortBy, order, query := parsePagination(r)
	ids := a.registry.ListTeams(userId, sortBy, order, query)

	teams := make([]TeamMetadata, 0, limit)
	for _, id := range page(ids, offset, limit) {
		if m, ok := a.registry.teamMeta(id); ok {
			teams = append(teams, m)
		}
	}
	writeJSON(w, http.StatusOK, listResponse[TeamMetadata]{
		Data: teams,
		Meta: listMeta{Total: len(ids), Offset: offset, Limit: limit},
	})
}

func (a *api) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
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
	if !isValidUUID(body.ID) {
		http.Error(w, "Bad Request: Invalid Team ID", http.StatusBadRequest)
		return
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	t, err := a.teams.LoadTeam(body.ID)
	if err != nil {
		writeError(w, "team", err)
		return
	}
	if t.IsDeleted() {
		w.WriteHeader(http.StatusOK)
		return
	}
	if GetTeamAccess(userId, *t) < AccessAdmin {
		writeError(w, "team", ErrForbidden)
		return
	}
	if err := a.teams.DeleteTeam(body.ID); err != nil {
		writeError(w, "team", err)
		return
	}
	a.registry.DeleteTeam(body.ID)
	log.Printf("Team %s deleted by %s", body.ID, maskEmail(userId))
	w.WriteHeader(http.StatusOK)
}

// PlayerLine is one roster entry of the team stats report.
type PlayerLine struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Number int               `json:"number"`
	Stats  stats.PlayerStats `json:"stats"`
	Games  stats.Batting     `json:"games"`
}

// TeamStats is the season report of one team.
type TeamStats struct {
	TeamID  string       `json:"teamId"`
	Name    string       `json:"name"`
	Season  int          `json:"season"`
	Totals  stats.Totals `json:"totals"`
	Players []PlayerLine `json:"players"`
}

// teamStats combines the stored stat sheets of the roster with the batting
// lines derived from the team's game logs.
func teamStats(t *Team, games []*Game) TeamStats {
	engineGames := make([]*engine.Game, 0, len(games))
	fromGames := map[string]*stats.Batting{}
	for _, g := range games {
		engineGames = append(engineGames, &g.Game)
		for id, b := range stats.FromEvents(g.State.Events) {
			if acc, ok := fromGames[id]; ok {
				acc.Add(*b)
			} else {
				fromGames[id] = b
			}
		}
	}
	out := TeamStats{
		TeamID:  t.ID,
		Name:    t.Name,
		Season:  t.Season,
		Totals:  stats.SeasonTotals(engineGames, t.ID),
		Players: make([]PlayerLine, 0, len(t.Players)),
	}
	for _, p := range t.Players {
		line := PlayerLine{ID: p.ID, Name: p.Name, Number: p.Number, Stats: p.Stats}
		if b, ok := fromGames[p.ID]; ok {
			line.Games = *b
		}
		out.Players = append(out.Players, line)
	}
	return out
}

func (a *api) handleTeamStats(w http.ResponseWriter, r *http.Request) {
	t, ok := a.readTeam(w, r, AccessRead)
	if !ok {
		return
	}
	games := a.loadGames(a.registry.GamesForTeam(t.ID))
	writeJSON(w, http.StatusOK, teamStats(t, games))
}

// handlePlayerStats applies a partial stat update to one roster entry.
func (a *api) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	if a.requireAllowedUser(w, r) == "" {
		return
	}
	var body struct {
		PlayerID string           `json:"playerId"`
		Stats    stats.StatsPatch `json:"stats"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	t, ok := a.readTeam(w, r, AccessWrite)
	if !ok {
		return
	}
	p := t.Player(body.PlayerID)
	if p == nil {
		http.Error(w, "Not Found: player not found", http.StatusNotFound)
		return
	}
	stats.Apply(&p.Stats, body.Stats)
	if err := a.teams.SaveTeam(t); err != nil {
		log.Printf("Error saving team %s: %v", t.ID, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.registry.UpdateTeam(t)
	writeJSON(w, http.StatusOK, p)
}
