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
	"iter"
	"os"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/wiffkeeper/backend/tournament"
)

// Tournament is a tournament as stored on disk. The bracket record is
// inlined in the JSON form.
type Tournament struct {
	tournament.Tournament

	SchemaVersion int         `json:"schemaVersion"`
	OwnerID       string      `json:"ownerId"`
	Permissions   Permissions `json:"permissions"`
	UpdatedAt     int64       `json:"updatedAt,omitempty"`

	// DeletedAt is the timestamp (Unix Nano) when the tournament was
	// deleted. A non-zero value marks a tombstone.
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// NewTournament returns an empty tournament owned by ownerID.
func NewTournament(name, ownerID string) *Tournament {
	t := &Tournament{
		Tournament:    *tournament.New(name),
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       normalizeEmail(ownerID),
	}
	t.normalize()
	return t
}

// IsDeleted reports whether t is a tombstone.
func (t *Tournament) IsDeleted() bool {
	return t.DeletedAt != 0
}

func (t *Tournament) normalize() {
	if t.SchemaVersion < SchemaVersionV1 {
		t.SchemaVersion = CurrentSchemaVersion
	}
	t.Permissions.normalize()
	if t.Teams == nil {
		t.Teams = []tournament.Team{}
	}
	if t.GameIDs == nil {
		t.GameIDs = []string{}
	}
	if t.Brackets.Rounds == nil {
		t.Brackets.Rounds = []*tournament.Round{}
	}
}

// TournamentStore manages tournament persistence to disk.
type TournamentStore struct {
	docStore
}

// NewTournamentStore creates a new TournamentStore.
func NewTournamentStore(dataDir string, s *storage.Storage) *TournamentStore {
	return &TournamentStore{docStore: newDocStore(dataDir, tournamentsDir, s)}
}

// SaveTournament overwrites the stored tournament with t.
func (ts *TournamentStore) SaveTournament(t *Tournament) error {
	if t.SchemaVersion < SchemaVersionV1 {
		t.SchemaVersion = CurrentSchemaVersion
	}
	t.UpdatedAt = time.Now().UnixNano()
	return ts.save(t.ID, t, nil)
}

// LoadTournament loads the tournament by id. It returns os.ErrNotExist if
// there is no such tournament.
func (ts *TournamentStore) LoadTournament(id string) (*Tournament, error) {
	var t Tournament
	if err := ts.load(id, &t); err != nil {
		return nil, err
	}
	t.normalize()
	return &t, nil
}

// DeleteTournament replaces the tournament with a tombstone.
func (ts *TournamentStore) DeleteTournament(id string) error {
	t, err := ts.LoadTournament(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	tombstone := &Tournament{
		Tournament:    tournament.Tournament{ID: id, Status: StatusDeleted},
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       t.OwnerID,
		DeletedAt:     time.Now().UnixNano(),
	}
	return ts.save(id, tombstone, nil)
}

// PurgeTournament permanently deletes the tournament file.
func (ts *TournamentStore) PurgeTournament(id string) error {
	return ts.purge(id)
}

// ListAllTournaments returns an iterator over all stored tournaments,
// tombstones included.
func (ts *TournamentStore) ListAllTournaments() iter.Seq2[*Tournament, error] {
	return listRecords(&ts.docStore, ts.LoadTournament)
}
