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
	"iter"
	"os"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/wiffkeeper/backend/engine"
)

// Permissions defines access control for a game or tournament.
type Permissions struct {
	Public string            `json:"public"` // "none", "read"
	Users  map[string]string `json:"users"`  // "email": "read"|"write"
}

func (p *Permissions) normalize() {
	if p.Public == "" {
		p.Public = PermissionNone
	}
	if p.Users == nil {
		p.Users = make(map[string]string)
	}
}

// Game is a game as stored on disk: the engine record plus ownership and
// bookkeeping fields. The engine fields are inlined in the JSON form.
type Game struct {
	engine.Game

	SchemaVersion int         `json:"schemaVersion"`
	OwnerID       string      `json:"ownerId"`
	Permissions   Permissions `json:"permissions"`

	// LastCommandID is the id of the last command applied to the game.
	LastCommandID string `json:"lastCommandId,omitempty"`
	// RecentCommandIDs holds the ids of the most recently applied commands,
	// oldest first, so that a retried command is not applied twice.
	RecentCommandIDs []string `json:"recentCommandIds,omitempty"`
	UpdatedAt     int64  `json:"updatedAt,omitempty"`

	// Status is "deleted" for tombstones and empty otherwise. The game's
	// own lifecycle lives in State.Status.
	Status string `json:"status,omitempty"`
	// DeletedAt is the timestamp (Unix Nano) when the game was deleted.
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// NewGame returns a fresh game owned by ownerID.
func NewGame(ownerID string, opts ...engine.Option) *Game {
	g := &Game{
		Game:          *engine.New(opts...),
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       normalizeEmail(ownerID),
	}
	g.normalize()
	return g
}

// IsDeleted reports whether g is a tombstone.
func (g *Game) IsDeleted() bool {
	return g.Status == StatusDeleted
}

func (g *Game) normalize() {
	if g.SchemaVersion < SchemaVersionV1 {
		g.SchemaVersion = CurrentSchemaVersion
	}
	g.Permissions.normalize()
	g.Game.Normalize()
}

// GameMetadata contains only the fields needed for indexing, listing and
// access checks.
type GameMetadata struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"ownerId"`
	Permissions  Permissions `json:"permissions"`
	HomeTeamID   string      `json:"homeTeamId,omitempty"`
	AwayTeamID   string      `json:"awayTeamId,omitempty"`
	Home         string      `json:"home"`
	Away         string      `json:"away"`
	HomeScore    int         `json:"homeScore"`
	AwayScore    int         `json:"awayScore"`
	Field        string      `json:"field"`
	TournamentID string      `json:"tournamentId,omitempty"`
	CreatedAt    string      `json:"createdAt"`
	UpdatedAt    int64       `json:"updatedAt"`
	Status       string      `json:"status"`
	DeletedAt    int64       `json:"deletedAt,omitempty"`
}

// Metadata returns the index entry for g.
func (g *Game) Metadata() GameMetadata {
	status := string(g.State.Status)
	if g.IsDeleted() {
		status = StatusDeleted
	}
	return GameMetadata{
		ID:           g.ID,
		OwnerID:      g.OwnerID,
		Permissions:  g.Permissions,
		HomeTeamID:   g.Home.ID,
		AwayTeamID:   g.Away.ID,
		Home:         g.Home.Name,
		Away:         g.Away.Name,
		HomeScore:    g.State.Total.Home,
		AwayScore:    g.State.Total.Away,
		Field:        g.Field.Name,
		TournamentID: g.Tournament.ID,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
		Status:       status,
		DeletedAt:    g.DeletedAt,
	}
}

// GameStore manages game persistence to disk.
type GameStore struct {
	docStore
}

// NewGameStore creates a new GameStore.
func NewGameStore(dataDir string, s *storage.Storage) *GameStore {
	return &GameStore{docStore: newDocStore(dataDir, gamesDir, s)}
}

// SaveGame overwrites the stored game with g.
func (gs *GameStore) SaveGame(g *Game) error {
	if g.SchemaVersion < SchemaVersionV1 {
		g.SchemaVersion = CurrentSchemaVersion
	}
	g.UpdatedAt = time.Now().UnixNano()
	meta := g.Metadata()
	return gs.save(g.ID, g, &meta)
}

// LoadGame loads the game by id. It returns os.ErrNotExist if there is no
// such game. Tombstones are returned as is.
func (gs *GameStore) LoadGame(gameId string) (*Game, error) {
	var g Game
	if err := gs.load(gameId, &g); err != nil {
		return nil, err
	}
	g.normalize()
	return &g, nil
}

// LoadGameAsJSON is a helper for API handlers that just want bytes.
func (gs *GameStore) LoadGameAsJSON(gameId string) ([]byte, error) {
	g, err := gs.LoadGame(gameId)
	if err != nil {
		return nil, err
	}
	return json.Marshal(g)
}

// DeleteGame replaces the game with a tombstone. Deleting a missing game is
// not an error.
func (gs *GameStore) DeleteGame(gameId string) error {
	g, err := gs.LoadGame(gameId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	tombstone := &Game{
		Game:          engine.Game{ID: gameId},
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       g.OwnerID,
		Status:        StatusDeleted,
		DeletedAt:     time.Now().UnixNano(),
	}
	meta := GameMetadata{
		ID:        gameId,
		OwnerID:   g.OwnerID,
		Status:    StatusDeleted,
		DeletedAt: tombstone.DeletedAt,
	}
	return gs.save(gameId, tombstone, &meta)
}

// PurgeGame permanently deletes the game file.
func (gs *GameStore) PurgeGame(gameId string) error {
	return gs.purge(gameId)
}

// ListAllGameMetadata returns metadata for all games without loading full
// event logs where a sidecar exists.
func (gs *GameStore) ListAllGameMetadata() iter.Seq2[GameMetadata, error] {
	return listMetadata(&gs.docStore, func(id string) (GameMetadata, error) {
		g, err := gs.LoadGame(id)
		if err != nil {
			return GameMetadata{}, err
		}
		return g.Metadata(), nil
	})
}

// ListAllGames returns an iterator over all stored games, tombstones included.
func (gs *GameStore) ListAllGames() iter.Seq2[*Game, error] {
	return listRecords(&gs.docStore, gs.LoadGame)
}
