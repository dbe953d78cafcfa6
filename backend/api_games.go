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
	"log"
	"net/http"
	"os"

	"github.com/ttbt-io/wiffkeeper/backend/engine"
)

type listMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type listResponse[T any] struct {
	Data []T      `json:"data"`
	Meta listMeta `json:"meta"`
}

func (a *api) handleNewGame(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	var setup GameSetup
	if !decodeBody(w, r, &setup) {
		return
	}
	if err := setup.Validate(); err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.accessControl.CheckGameQuota(userId, a.registry.CountOwnedGames(userId)); err != nil {
		http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
		return
	}

	for _, ref := range []*engine.TeamRef{&setup.Home, &setup.Away} {
		if ref.ID == "" {
			continue
		}
		team, err := a.teams.LoadTeam(ref.ID)
		if err != nil || team.IsDeleted() {
			http.Error(w, "Not Found: team not found", http.StatusNotFound)
			return
		}
		if GetTeamAccess(userId, *team) < AccessWrite {
			http.Error(w, "Forbidden: You do not have access to this team", http.StatusForbidden)
			return
		}
		if ref.Name == "" {
			ref.Name = team.Name
		}
		if len(ref.Players) == 0 {
			for _, p := range team.Players {
				ref.Players = append(ref.Players, p.ID)
			}
		}
	}

	a.recordMu.Lock()
	defer a.recordMu.Unlock()

	var t *Tournament
	if link := setup.Tournament; link.ID != "" {
		var err error
		t, err = a.tournaments.LoadTournament(link.ID)
		if err != nil || t.IsDeleted() {
			http.Error(w, "Not Found: tournament not found", http.StatusNotFound)
			return
		}
		if GetTournamentAccess(userId, *t) < AccessWrite {
			http.Error(w, "Forbidden: You do not have access to this tournament", http.StatusForbidden)
			return
		}
	}

	g := NewGame(userId, setup.Options()...)
	if p := setup.Permissions; p != nil {
		g.Permissions = Permissions{Public: p.Public, Users: make(map[string]string, len(p.Users))}
		for u, role := range p.Users {
			g.Permissions.Users[normalizeEmail(u)] = role
		}
		g.Permissions.normalize()
	}
	if err := a.games.SaveGame(g); err != nil {
		log.Printf("Error saving new game: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.registry.UpdateGame(g)

	if t != nil {
		linkGame(t, g)
		if err := a.tournaments.SaveTournament(t); err != nil {
			log.Printf("Error linking game %s to tournament %s: %v", g.ID, t.ID, err)
		} else {
			a.registry.UpdateTournament(t)
		}
	}

	a.debugf("New game %s created by %s", g.ID, maskEmail(userId))
	writeJSON(w, http.StatusCreated, g)
}

// linkGame records g in the tournament's game list and, when the game names
// a bracket slot, in that matchup.
func linkGame(t *Tournament, g *Game) {
	t.GameIDs = append(t.GameIDs, g.ID)
	link := g.Tournament
	for _, round := range t.Brackets.Rounds {
		if round.RoundNumber != link.Round {
			continue
		}
		if n := link.GameNumber; n >= 1 && n <= len(round.Games) {
			round.Games[n-1].GameID = g.ID
		}
	}
}

// gameID extracts and validates the {id} path value.
func (a *api) gameID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !isValidUUID(id) {
		http.Error(w, "Bad Request: Invalid Game ID", http.StatusBadRequest)
		return "", false
	}
	if !a.registry.GameExists(id) {
		http.Error(w, "Not Found: game not found", http.StatusNotFound)
		return "", false
	}
	return id, true
}

// loadGame reads the current game record through its hub, which checks
// read access.
func (a *api) loadGame(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	id, ok := a.gameID(w, r)
	if !ok {
		return nil, false
	}
	resp, ok := a.callHub(w, r, id, HubRequest{Type: ReqTypeLoad, UserId: getUserID(r)}, retryAfterLoad)
	if !ok {
		return nil, false
	}
	return resp.Data, true
}

func (a *api) handleLoadGame(w http.ResponseWriter, r *http.Request) {
	data, ok := a.loadGame(w, r)
	if !ok {
		return
	}
	writeCached(w, r, "application/json", data)
}

func (a *api) handleListGames(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}

	var knownIds []string
	if r.Method == http.MethodPost {
		var body struct {
			KnownIds []string `json:"knownIds"`
		}
		// An empty body is an empty list.
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err == nil {
			knownIds = body.KnownIds
		}
	}

	limit, offset, sortBy, order, query := parsePagination(r)
	ids := a.registry.ListGames(userId, sortBy, order, query)

	games := make([]GameMetadata, 0, limit)
	for _, id := range page(ids, offset, limit) {
		if m, ok := a.registry.gameMeta(id); ok {
			games = append(games, m)
		}
	}
	for _, kid := range knownIds {
		if a.registry.IsGameDeleted(kid) {
			games = append(games, GameMetadata{ID: kid, Status: StatusDeleted})
		}
	}

	writeJSON(w, http.StatusOK, listResponse[GameMetadata]{
		Data: games,
		Meta: listMeta{Total: len(ids), Offset: offset, Limit: limit},
	})
}

func (a *api) handleAction(w http.ResponseWriter, r *http.Request) {
	userId := a.requireAllowedUser(w, r)
	if userId == "" {
		return
	}
	var body struct {
		GameID  string  `json:"gameId"`
		Command Command `json:"command"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !isValidUUID(body.GameID) {
		http.Error(w, "Bad Request: Invalid Game ID", http.StatusBadRequest)
		return
	}
	if !a.registry.GameExists(body.GameID) {
		http.Error(w, "Not Found: game not found", http.StatusNotFound)
		return
	}
	resp, ok := a.callHub(w, r, body.GameID, HubRequest{
		Type:    ReqTypeCommand,
		UserId:  userId,
		Command: body.Command,
	}, retryAfterAction)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Applied bool            `json:"applied"`
		Game    json.RawMessage `json:"game"`
	}{resp.Applied, resp.Data})
}

func (a *api) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "Bad Request: Invalid Game ID", http.StatusBadRequest)
		return
	}
	if a.registry.IsGameDeleted(body.ID) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !a.registry.GameExists(body.ID) {
		http.Error(w, "Not Found: game not found", http.StatusNotFound)
		return
	}
	if _, ok := a.callHub(w, r, body.ID, HubRequest{Type: ReqTypeDelete, UserId: userId}, retryAfterAction); !ok {
		return
	}
	log.Printf("Game %s deleted by %s", body.ID, maskEmail(userId))
	w.WriteHeader(http.StatusOK)
}

// readGame loads and decodes the game named by the {id} path value.
func (a *api) readGame(w http.ResponseWriter, r *http.Request) (*Game, bool) {
	data, ok := a.loadGame(w, r)
	if !ok {
		return nil, false
	}
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		writeError(w, "game", err)
		return nil, false
	}
	return &g, true
}

func (a *api) handleBoxScore(w http.ResponseWriter, r *http.Request) {
	g, ok := a.readGame(w, r)
	if !ok {
		return
	}
	box := g.BoxScore()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(box.String()))
		return
	}
	writeJSON(w, http.StatusOK, box)
}

func (a *api) handleFeed(w http.ResponseWriter, r *http.Request) {
	g, ok := a.readGame(w, r)
	if !ok {
		return
	}
	writeCached(w, r, "text/plain; charset=utf-8", []byte(g.Narrative()))
}

// loadGames reads the given games from disk, skipping missing records.
func (a *api) loadGames(ids []string) []*Game {
	games := make([]*Game, 0, len(ids))
	for _, id := range ids {
		g, err := a.games.LoadGame(id)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			log.Printf("Error loading game %s: %v", id, err)
			continue
		}
		if !g.IsDeleted() {
			games = append(games, g)
		}
	}
	return games
}
