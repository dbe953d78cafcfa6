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
	"cmp"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ttbt-io/wiffkeeper/backend/search"
)

const tombstoneTTL = 30 * 24 * time.Hour
const gcInterval = 12 * time.Hour

// Registry keeps the index of live games, teams and tournaments so that
// listing and quota checks do not scan the data directory. Metadata is
// cached in LRUs and reloaded from the sidecar files on a miss.
type Registry struct {
	gameStore       *GameStore
	teamStore       *TeamStore
	tournamentStore *TournamentStore
	storage         *storage.Storage

	mu          sync.RWMutex
	games       map[string]bool
	teams       map[string]bool
	tournaments map[string]bool

	// Also acts as tombstone cache (Status="deleted")
	gameMetadata *lru.Cache[string, GameMetadata]
	teamMetadata *lru.Cache[string, TeamMetadata]

	accessPolicy *UserAccessPolicy

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a new Registry, loads the access policy and indexes
// the stores. The caller stops the tombstone collector with StopGC.
func NewRegistry(gs *GameStore, ts *TeamStore, tms *TournamentStore, s *storage.Storage) *Registry {
	gmCache, _ := lru.New[string, GameMetadata](5000)
	tmCache, _ := lru.New[string, TeamMetadata](2000)

	r := &Registry{
		gameStore:       gs,
		teamStore:       ts,
		tournamentStore: tms,
		storage:         s,
		games:           make(map[string]bool),
		teams:           make(map[string]bool),
		tournaments:     make(map[string]bool),
		gameMetadata:    gmCache,
		teamMetadata:    tmCache,
		stopChan:        make(chan struct{}),
	}
	r.loadAccessPolicy()
	r.Rebuild()
	r.StartGC()
	return r
}

func (r *Registry) loadAccessPolicy() {
	if r.storage == nil {
		return
	}
	var p UserAccessPolicy
	if err := r.storage.ReadDataFile(accessPolicyFile, &p); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Registry: Warning: failed to load access policy: %v", err)
		}
		return
	}
	r.accessPolicy = &p
}

// StartGC starts the background tombstone garbage collector.
func (r *Registry) StartGC() {
	go func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.PurgeOldTombstones()
			case <-r.stopChan:
				return
			}
		}
	}()
}

// StopGC stops the background tombstone garbage collector.
func (r *Registry) StopGC() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

func expired(deletedAt int64, cutoff int64) bool {
	return deletedAt > 0 && deletedAt < cutoff
}

// PurgeOldTombstones permanently deletes tombstones older than 30 days.
func (r *Registry) PurgeOldTombstones() {
	cutoff := time.Now().Add(-tombstoneTTL).UnixNano()
	var purgedGames, purgedTeams, purgedTournaments int

	for t, err := range r.teamStore.ListAllTeamMetadata() {
		if err == nil && t.Status == StatusDeleted && expired(t.DeletedAt, cutoff) {
			if err := r.teamStore.PurgeTeam(t.ID); err == nil {
				r.teamMetadata.Remove(t.ID)
				purgedTeams++
			}
		}
	}
	for g, err := range r.gameStore.ListAllGameMetadata() {
		if err == nil && g.Status == StatusDeleted && expired(g.DeletedAt, cutoff) {
			if err := r.gameStore.PurgeGame(g.ID); err == nil {
				r.gameMetadata.Remove(g.ID)
				purgedGames++
			}
		}
	}
	for t, err := range r.tournamentStore.ListAllTournaments() {
		if err == nil && t.IsDeleted() && expired(t.DeletedAt, cutoff) {
			if err := r.tournamentStore.PurgeTournament(t.ID); err == nil {
				purgedTournaments++
			}
		}
	}

	if purgedGames+purgedTeams+purgedTournaments > 0 {
		log.Printf("Registry: GC complete. Purged %d games, %d teams, %d tournaments.", purgedGames, purgedTeams, purgedTournaments)
	}
}

// Rebuild reconstructs the index by scanning the stores. Expired
// tombstones found along the way are purged.
func (r *Registry) Rebuild() {
	cutoff := time.Now().Add(-tombstoneTTL).UnixNano()
	games := make(map[string]bool)
	teams := make(map[string]bool)
	tournaments := make(map[string]bool)

	for t, err := range r.teamStore.ListAllTeamMetadata() {
		if err != nil {
			log.Printf("Registry: Error listing teams: %v", err)
			break
		}
		if t.Status == StatusDeleted && expired(t.DeletedAt, cutoff) {
			r.teamStore.PurgeTeam(t.ID)
			continue
		}
		r.teamMetadata.Add(t.ID, t)
		if t.Status != StatusDeleted {
			teams[t.ID] = true
		}
	}
	for g, err := range r.gameStore.ListAllGameMetadata() {
		if err != nil {
			log.Printf("Registry: Error listing games: %v", err)
			break
		}
		if g.Status == StatusDeleted && expired(g.DeletedAt, cutoff) {
			r.gameStore.PurgeGame(g.ID)
			continue
		}
		r.gameMetadata.Add(g.ID, g)
		if g.Status != StatusDeleted {
			games[g.ID] = true
		}
	}
	for t, err := range r.tournamentStore.ListAllTournaments() {
		if err != nil {
			log.Printf("Registry: Error listing tournaments: %v", err)
			break
		}
		if t.IsDeleted() {
			if expired(t.DeletedAt, cutoff) {
				r.tournamentStore.PurgeTournament(t.ID)
			}
			continue
		}
		tournaments[t.ID] = true
	}

	r.mu.Lock()
	r.games, r.teams, r.tournaments = games, teams, tournaments
	r.mu.Unlock()
	log.Printf("Registry: Indexed %d games, %d teams, %d tournaments.", len(games), len(teams), len(tournaments))
}

// UpdateAccessPolicy persists and caches the access policy.
func (r *Registry) UpdateAccessPolicy(policy *UserAccessPolicy) error {
	if r.storage != nil {
		if err := r.storage.SaveDataFile(accessPolicyFile, policy); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessPolicy = policy
	return nil
}

// GetAccessPolicy returns the current access policy, or nil if none was set.
func (r *Registry) GetAccessPolicy() *UserAccessPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accessPolicy
}

// UpdateGame indexes a saved game.
func (r *Registry) UpdateGame(g *Game) {
	m := g.Metadata()
	r.gameMetadata.Add(g.ID, m)
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Status == StatusDeleted {
		delete(r.games, g.ID)
		return
	}
	r.games[g.ID] = true
}

// UpdateTeam indexes a saved team.
func (r *Registry) UpdateTeam(t *Team) {
	m := t.Metadata()
	r.teamMetadata.Add(t.ID, m)
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IsDeleted() {
		delete(r.teams, t.ID)
		return
	}
	r.teams[t.ID] = true
}

// UpdateTournament indexes a saved tournament.
func (r *Registry) UpdateTournament(t *Tournament) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IsDeleted() {
		delete(r.tournaments, t.ID)
		return
	}
	r.tournaments[t.ID] = true
}

// DeleteGame removes a game from the index and caches its tombstone.
func (r *Registry) DeleteGame(gameId string) {
	r.gameMetadata.Add(gameId, GameMetadata{ID: gameId, Status: StatusDeleted, DeletedAt: time.Now().UnixNano()})
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, gameId)
}

// DeleteTeam removes a team from the index and caches its tombstone.
func (r *Registry) DeleteTeam(teamId string) {
	r.teamMetadata.Add(teamId, TeamMetadata{ID: teamId, Status: StatusDeleted, DeletedAt: time.Now().UnixNano()})
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.teams, teamId)
}

// DeleteTournament removes a tournament from the index.
func (r *Registry) DeleteTournament(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tournaments, id)
}

func (r *Registry) gameMeta(id string) (GameMetadata, bool) {
	if m, ok := r.gameMetadata.Get(id); ok {
		return m, true
	}
	var m GameMetadata
	if err := r.gameStore.loadMeta(id, &m); err != nil {
		g, err := r.gameStore.LoadGame(id)
		if err != nil {
			return GameMetadata{}, false
		}
		m = g.Metadata()
	}
	r.gameMetadata.Add(id, m)
	return m, true
}

func (r *Registry) teamMeta(id string) (TeamMetadata, bool) {
	if m, ok := r.teamMetadata.Get(id); ok {
		return m, true
	}
	var m TeamMetadata
	if err := r.teamStore.loadMeta(id, &m); err != nil {
		t, err := r.teamStore.LoadTeam(id)
		if err != nil {
			return TeamMetadata{}, false
		}
		m = t.Metadata()
	}
	r.teamMetadata.Add(id, m)
	return m, true
}

func (r *Registry) lookupTeam(teamId string) (Team, bool) {
	m, ok := r.teamMeta(teamId)
	if !ok || m.Status == StatusDeleted {
		return Team{}, false
	}
	return Team{ID: m.ID, OwnerID: m.OwnerID, Roles: m.Roles}, true
}

// IsGameDeleted reports whether the game's latest record is a tombstone.
func (r *Registry) IsGameDeleted(id string) bool {
	m, ok := r.gameMeta(id)
	return ok && m.Status == StatusDeleted
}

// IsTeamDeleted reports whether the team's latest record is a tombstone.
func (r *Registry) IsTeamDeleted(id string) bool {
	m, ok := r.teamMeta(id)
	return ok && m.Status == StatusDeleted
}

// GameExists reports whether a live game with this id exists.
func (r *Registry) GameExists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.games[id]
}

// TeamExists reports whether a live team with this id exists.
func (r *Registry) TeamExists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teams[id]
}

// GetAccessLevel calculates the effective access level for a user on a
// game from indexed metadata, without loading the full game.
func (r *Registry) GetAccessLevel(userId, gameId string) AccessLevel {
	m, ok := r.gameMeta(gameId)
	if !ok || m.Status == StatusDeleted {
		return AccessNone
	}
	return gameAccess(userId, m, r.lookupTeam)
}

// snapshot copies the ids of one collection of the index.
func (r *Registry) snapshot(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := map[string]map[string]bool{
		gamesDir:       r.games,
		teamsDir:       r.teams,
		tournamentsDir: r.tournaments,
	}[kind]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// CountOwnedGames returns the number of live games owned by userId.
func (r *Registry) CountOwnedGames(userId string) int {
	userId = normalizeEmail(userId)
	count := 0
	for _, id := range r.snapshot(gamesDir) {
		if m, ok := r.gameMeta(id); ok && m.OwnerID == userId {
			count++
		}
	}
	return count
}

// CountOwnedTeams returns the number of live teams owned by userId.
func (r *Registry) CountOwnedTeams(userId string) int {
	userId = normalizeEmail(userId)
	count := 0
	for _, id := range r.snapshot(teamsDir) {
		if m, ok := r.teamMeta(id); ok && m.OwnerID == userId {
			count++
		}
	}
	return count
}

// CountOwnedTournaments returns the number of live tournaments owned by userId.
func (r *Registry) CountOwnedTournaments(userId string) int {
	userId = normalizeEmail(userId)
	count := 0
	for _, id := range r.snapshot(tournamentsDir) {
		if t, err := r.tournamentStore.LoadTournament(id); err == nil && t.OwnerID == userId {
			count++
		}
	}
	return count
}

// CountTotalGames returns the number of live games.
func (r *Registry) CountTotalGames() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// CountTotalTournaments returns the number of live tournaments.
func (r *Registry) CountTotalTournaments() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tournaments)
}

// CountTotalTeams returns the number of live teams.
func (r *Registry) CountTotalTeams() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.teams)
}

// GamesForTeam returns the ids of the live games teamId played in.
func (r *Registry) GamesForTeam(teamId string) []string {
	return r.gamesWhere(func(m GameMetadata) bool {
		return m.HomeTeamID == teamId || m.AwayTeamID == teamId
	})
}

// GamesForTournament returns the ids of the live games linked to a tournament.
func (r *Registry) GamesForTournament(tournamentId string) []string {
	return r.gamesWhere(func(m GameMetadata) bool {
		return m.TournamentID == tournamentId
	})
}

func (r *Registry) gamesWhere(keep func(GameMetadata) bool) []string {
	var ids []string
	for _, id := range r.snapshot(gamesDir) {
		if m, ok := r.gameMeta(id); ok && m.Status != StatusDeleted && keep(m) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func gameDocument(m GameMetadata, userId string) search.Document {
	return search.Document{
		Text: []string{m.Home, m.Away, m.Field},
		Fields: map[string]string{
			"home":  m.Home,
			"away":  m.Away,
			"team":  m.Home + "\x00" + m.Away,
			"field": m.Field,
			"owner": m.OwnerID,
		},
		Ordered: map[string]string{
			"created": m.CreatedAt,
			"date":    m.CreatedAt,
		},
		Flags: map[string]bool{
			"final":      m.Status == "final",
			"live":       m.Status == "in_progress",
			"mine":       userId != "" && m.OwnerID == userId,
			"public":     m.Permissions.Public == PermissionRead,
			"tournament": m.TournamentID != "",
		},
	}
}

// ListGames returns the ids of the games userId can read that match query,
// sorted by sortBy ("created", "home", "away", "field", "updated").
func (r *Registry) ListGames(userId, sortBy, order, query string) []string {
	if sortBy == "" {
		sortBy = "created"
	}
	if order == "" {
		order = "asc"
		if sortBy == "created" || sortBy == "updated" {
			order = "desc"
		}
	}
	userId = normalizeEmail(userId)
	q := search.Parse(query).Lower("created", "date")

	var matches []GameMetadata
	for _, id := range r.snapshot(gamesDir) {
		m, ok := r.gameMeta(id)
		if !ok || m.Status == StatusDeleted {
			continue
		}
		if gameAccess(userId, m, r.lookupTeam) < AccessRead {
			continue
		}
		if !q.Matches(gameDocument(m, userId)) {
			continue
		}
		matches = append(matches, m)
	}

	key := func(m GameMetadata) string {
		switch sortBy {
		case "home":
			return strings.ToLower(m.Home)
		case "away":
			return strings.ToLower(m.Away)
		case "field":
			return strings.ToLower(m.Field)
		case "updated":
			return fmt.Sprintf("%020d", m.UpdatedAt)
		}
		return m.CreatedAt
	}
	sortByKey(matches, key, func(m GameMetadata) string { return m.ID }, order == "desc")

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

func teamDocument(m TeamMetadata, userId string) search.Document {
	return search.Document{
		Text: []string{m.Name},
		Fields: map[string]string{
			"name":  m.Name,
			"owner": m.OwnerID,
		},
		Ordered: map[string]string{
			"season": strconv.Itoa(m.Season),
		},
		Flags: map[string]bool{
			"mine": userId != "" && m.OwnerID == userId,
		},
	}
}

// ListTeams returns the ids of the teams userId belongs to that match
// query, sorted by sortBy ("name", "updated").
func (r *Registry) ListTeams(userId, sortBy, order, query string) []string {
	if sortBy == "" {
		sortBy = "name"
	}
	if order == "" {
		order = "asc"
		if sortBy == "updated" {
			order = "desc"
		}
	}
	userId = normalizeEmail(userId)
	q := search.Parse(query).Lower()

	var matches []TeamMetadata
	for _, id := range r.snapshot(teamsDir) {
		m, ok := r.teamMeta(id)
		if !ok || m.Status == StatusDeleted {
			continue
		}
		if GetTeamAccess(userId, Team{OwnerID: m.OwnerID, Roles: m.Roles}) < AccessRead {
			continue
		}
		if !q.Matches(teamDocument(m, userId)) {
			continue
		}
		matches = append(matches, m)
	}

	key := func(m TeamMetadata) string {
		if sortBy == "updated" {
			return fmt.Sprintf("%020d", m.UpdatedAt)
		}
		return strings.ToLower(m.Name)
	}
	sortByKey(matches, key, func(m TeamMetadata) string { return m.ID }, order == "desc")

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

// ListTournaments returns the tournaments userId can read, newest first.
func (r *Registry) ListTournaments(userId string) []*Tournament {
	var out []*Tournament
	for _, id := range r.snapshot(tournamentsDir) {
		t, err := r.tournamentStore.LoadTournament(id)
		if err != nil || t.IsDeleted() {
			continue
		}
		if GetTournamentAccess(userId, *t) < AccessRead {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Tournament) int {
		if c := cmp.Compare(b.StartDate, a.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// sortByKey sorts s by key, breaking ties by id so that pagination is stable.
func sortByKey[T any](s []T, key, id func(T) string, desc bool) {
	slices.SortFunc(s, func(a, b T) int {
		c := cmp.Compare(key(a), key(b))
		if c == 0 {
			c = cmp.Compare(id(a), id(b))
		}
		if desc {
			return -c
		}
		return c
	})
}
