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
	"testing"

	"github.com/c2FmZQ/storage"
)

func TestAccessPolicyLoadedOnStartup(t *testing.T) {
	tempDir := t.TempDir()
	s := storage.New(tempDir, nil)

	policy := UserAccessPolicy{
		DefaultPolicy: PolicyDeny,
		Admins:        []string{"admin@example.com"},
	}
	if err := s.SaveDataFile(accessPolicyFile, &policy); err != nil {
		t.Fatalf("Failed to save policy: %v", err)
	}

	r := NewRegistry(NewGameStore(tempDir, s), NewTeamStore(tempDir, s), NewTournamentStore(tempDir, s), s)
	defer r.StopGC()

	loaded := r.GetAccessPolicy()
	if loaded == nil {
		t.Fatal("Access policy was not loaded on startup")
	}
	if loaded.DefaultPolicy != PolicyDeny {
		t.Errorf("Expected DefaultPolicy='deny', got '%s'", loaded.DefaultPolicy)
	}
	if len(loaded.Admins) != 1 || loaded.Admins[0] != "admin@example.com" {
		t.Errorf("Admins mismatch: %v", loaded.Admins)
	}
}

func TestAccessPolicyPersists(t *testing.T) {
	env := newTestEnv(t)
	if err := env.reg.UpdateAccessPolicy(&UserAccessPolicy{DefaultPolicy: PolicyAllow, DefaultMaxGames: 7}); err != nil {
		t.Fatalf("UpdateAccessPolicy: %v", err)
	}

	r2 := NewRegistry(env.gs, env.ts, env.tms, env.s)
	defer r2.StopGC()
	if p := r2.GetAccessPolicy(); p == nil || p.DefaultMaxGames != 7 {
		t.Errorf("Expected persisted policy, got %+v", p)
	}
}
