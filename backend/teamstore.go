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
	"github.com/google/uuid"
	"github.com/ttbt-io/wiffkeeper/backend/stats"
)

// TeamRoles defines the members of a team by their role.
type TeamRoles struct {
	Admins       []string `json:"admins"`
	Scorekeepers []string `json:"scorekeepers"`
	Spectators   []string `json:"spectators"`
}

func (r *TeamRoles) normalize() {
	if r.Admins == nil {
		r.Admins = make([]string, 0)
	}
	if r.Scorekeepers == nil {
		r.Scorekeepers = make([]string, 0)
	}
	if r.Spectators == nil {
		r.Spectators = make([]string, 0)
	}
}

// Player is a member of a team roster.
type Player struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Number    int               `json:"number"`
	Positions []string          `json:"positions"`
	Stats     stats.PlayerStats `json:"stats"`
}

// NewPlayer returns a player with a fresh id and zeroed statistics.
func NewPlayer(name string, number int) Player {
	return Player{
		ID:        uuid.NewString(),
		Name:      name,
		Number:    number,
		Positions: []string{},
		Stats:     stats.New(),
	}
}

// Team represents a persistent team roster and its permissions.
type Team struct {
	ID            string    `json:"id"`
	SchemaVersion int       `json:"schemaVersion"`
	Name          string    `json:"name,omitempty"`
	Season        int       `json:"season,omitempty"`
	Players       []Player  `json:"players"`
	CreatedAt     string    `json:"createdAt,omitempty"`
	OwnerID       string    `json:"ownerId"`
	Roles         TeamRoles `json:"roles"`
	UpdatedAt     int64     `json:"updatedAt,omitempty"`

	// Status can be "active" (default/empty) or "deleted"
	Status string `json:"status,omitempty"`
	// DeletedAt is the timestamp (Unix Nano) when the team was deleted.
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// NewTeam returns an empty team for the current season.
func NewTeam(name, ownerID string) *Team {
	now := time.Now().UTC()
	t := &Team{
		ID:        uuid.NewString(),
		Name:      name,
		Season:    now.Year(),
		CreatedAt: now.Format(time.RFC3339),
		OwnerID:   normalizeEmail(ownerID),
	}
	t.normalize()
	return t
}

func (t *Team) normalize() {
	if t.SchemaVersion < SchemaVersionV1 {
		t.SchemaVersion = CurrentSchemaVersion
	}
	if t.Players == nil {
		t.Players = make([]Player, 0)
	}
	for i := range t.Players {
		if t.Players[i].Positions == nil {
			t.Players[i].Positions = []string{}
		}
	}
	t.Roles.normalize()
}

// IsDeleted reports whether t is a tombstone.
func (t *Team) IsDeleted() bool {
	return t.Status == StatusDeleted
}

// Player returns the roster entry with the given id, or nil.
func (t *Team) Player(id string) *Player {
	for i := range t.Players {
		if t.Players[i].ID == id {
			return &t.Players[i]
		}
	}
	return nil
}

// TeamMetadata contains only the fields needed for indexing.
type TeamMetadata struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Season    int       `json:"season,omitempty"`
	OwnerID   string    `json:"ownerId"`
	Roles     TeamRoles `json:"roles"`
	Players   int       `json:"players"`
	UpdatedAt int64     `json:"updatedAt"`
	Status    string    `json:"status,omitempty"`
	DeletedAt int64     `json:"deletedAt,omitempty"`
}

// Metadata returns the index entry for t.
func (t *Team) Metadata() TeamMetadata {
	return TeamMetadata{
		ID:        t.ID,
		Name:      t.Name,
		Season:    t.Season,
		OwnerID:   t.OwnerID,
		Roles:     t.Roles,
		Players:   len(t.Players),
		UpdatedAt: t.UpdatedAt,
		Status:    t.Status,
		DeletedAt: t.DeletedAt,
	}
}

// TeamStore manages team persistence to disk.
type TeamStore struct {
	docStore
}

// NewTeamStore creates a new TeamStore.
func NewTeamStore(dataDir string, s *storage.Storage) *TeamStore {
	return &TeamStore{docStore: newDocStore(dataDir, teamsDir, s)}
}

// SaveTeam overwrites the stored team with t.
func (ts *TeamStore) SaveTeam(t *Team) error {
	if t.SchemaVersion < SchemaVersionV1 {
		t.SchemaVersion = CurrentSchemaVersion
	}
	t.UpdatedAt = time.Now().UnixNano()
	meta := t.Metadata()
	return ts.save(t.ID, t, &meta)
}

// LoadTeam loads the team by id. It returns os.ErrNotExist if there is no
// such team.
func (ts *TeamStore) LoadTeam(teamId string) (*Team, error) {
	var t Team
	if err := ts.load(teamId, &t); err != nil {
		return nil, err
	}
	t.normalize()
	return &t, nil
}

// LoadTeamAsJSON is a helper for API handlers that just want bytes.
func (ts *TeamStore) LoadTeamAsJSON(teamId string) ([]byte, error) {
	t, err := ts.LoadTeam(teamId)
	if err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// DeleteTeam replaces the team with a tombstone.
func (ts *TeamStore) DeleteTeam(teamId string) error {
	t, err := ts.LoadTeam(teamId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	tombstone := &Team{
		ID:            teamId,
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       t.OwnerID,
		Status:        StatusDeleted,
		DeletedAt:     time.Now().UnixNano(),
	}
	meta := TeamMetadata{
		ID:        teamId,
		OwnerID:   t.OwnerID,
		Status:    StatusDeleted,
		DeletedAt: tombstone.DeletedAt,
	}
	return ts.save(teamId, tombstone, &meta)
}

// PurgeTeam permanently deletes the team file.
func (ts *TeamStore) PurgeTeam(teamId string) error {
	return ts.purge(teamId)
}

// ListAllTeamMetadata returns metadata for all teams.
func (ts *TeamStore) ListAllTeamMetadata() iter.Seq2[TeamMetadata, error] {
	return listMetadata(&ts.docStore, func(id string) (TeamMetadata, error) {
		t, err := ts.LoadTeam(id)
		if err != nil {
			return TeamMetadata{}, err
		}
		return t.Metadata(), nil
	})
}

// ListAllTeams returns an iterator over all stored teams, tombstones included.
func (ts *TeamStore) ListAllTeams() iter.Seq2[*Team, error] {
	return listRecords(&ts.docStore, ts.LoadTeam)
}
