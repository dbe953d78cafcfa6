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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ttbt-io/wiffkeeper/backend/engine"
	"github.com/ttbt-io/wiffkeeper/backend/tournament"
)

func writeGameTombstone(t *testing.T, env *testEnv, id string, deletedAt int64) {
	t.Helper()
	env.s.SaveDataFile(filepath.Join(gamesDir, id+".json"), &Game{
		Game: engine.Game{ID: id}, Status: StatusDeleted, DeletedAt: deletedAt, SchemaVersion: CurrentSchemaVersion,
	})
	env.s.SaveDataFile(filepath.Join(gamesDir, id+".meta.json"), &GameMetadata{
		ID: id, Status: StatusDeleted, DeletedAt: deletedAt,
	})
}

func TestRegistry_GC(t *testing.T) {
	env := newTestEnv(t)
	r := env.reg

	now := time.Now()
	expiredAt := now.Add(-tombstoneTTL - time.Hour).UnixNano()
	freshAt := now.Add(-tombstoneTTL + time.Hour).UnixNano()

	writeGameTombstone(t, env, "expired-game", expiredAt)
	env.s.SaveDataFile(filepath.Join(teamsDir, "expired-team.json"), &Team{
		ID: "expired-team", Status: StatusDeleted, DeletedAt: expiredAt, SchemaVersion: CurrentSchemaVersion,
	})
	env.s.SaveDataFile(filepath.Join(tournamentsDir, "expired-cup.json"), &Tournament{
		Tournament: tournament.Tournament{ID: "expired-cup", Status: StatusDeleted}, DeletedAt: expiredAt,
	})

	writeGameTombstone(t, env, "fresh-game", freshAt)
	env.s.SaveDataFile(filepath.Join(teamsDir, "fresh-team.json"), &Team{
		ID: "fresh-team", Status: StatusDeleted, DeletedAt: freshAt, SchemaVersion: CurrentSchemaVersion,
	})

	active := NewGame("owner@example.com")
	env.gs.SaveGame(active)

	r.PurgeOldTombstones()

	checkExists := func(path string, shouldExist bool) {
		_, err := os.Stat(filepath.Join(env.dir, path))
		exists := !os.IsNotExist(err)
		if exists != shouldExist {
			t.Errorf("File %s exists=%v, want %v", path, exists, shouldExist)
		}
	}

	checkExists(filepath.Join(gamesDir, "expired-game.json"), false)
	checkExists(filepath.Join(gamesDir, "expired-game.meta.json"), false)
	checkExists(filepath.Join(teamsDir, "expired-team.json"), false)
	checkExists(filepath.Join(tournamentsDir, "expired-cup.json"), false)

	checkExists(filepath.Join(gamesDir, "fresh-game.json"), true)
	checkExists(filepath.Join(gamesDir, "fresh-game.meta.json"), true)
	checkExists(filepath.Join(teamsDir, "fresh-team.json"), true)

	checkExists(filepath.Join(gamesDir, active.ID+".json"), true)
}

func TestRegistry_Rebuild_WithGC(t *testing.T) {
	env := newTestEnv(t)

	expiredAt := time.Now().Add(-tombstoneTTL - time.Hour).UnixNano()
	writeGameTombstone(t, env, "expired-game-rebuild", expiredAt)

	r := NewRegistry(env.gs, env.ts, env.tms, env.s)
	defer r.StopGC()

	if _, err := os.Stat(filepath.Join(env.dir, gamesDir, "expired-game-rebuild.json")); !os.IsNotExist(err) {
		t.Errorf("Expired game should have been purged during Rebuild")
	}
	if r.CountTotalGames() != 0 {
		t.Errorf("Registry should have 0 games, got %d", r.CountTotalGames())
	}
}
