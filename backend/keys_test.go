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
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenStorage(t *testing.T) {
	t.Run("Unencrypted", func(t *testing.T) {
		dir := t.TempDir()
		s, err := OpenStorage(dir, "")
		if err != nil {
			t.Fatalf("OpenStorage: %v", err)
		}
		tm := &Team{ID: "t1", Name: "Plain"}
		if err := s.SaveDataFile("teams/t1.json", tm); err != nil {
			t.Fatalf("SaveDataFile: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, masterKeyFile)); !os.IsNotExist(err) {
			t.Errorf("master key created without a passphrase")
		}
	})

	t.Run("Encrypted", func(t *testing.T) {
		dir := t.TempDir()
		s, err := OpenStorage(dir, "hunter2")
		if err != nil {
			t.Fatalf("OpenStorage: %v", err)
		}
		if err := s.SaveDataFile("teams/t1.json", &Team{ID: "t1", Name: "Secret"}); err != nil {
			t.Fatalf("SaveDataFile: %v", err)
		}

		s2, err := OpenStorage(dir, "hunter2")
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		var got Team
		if err := s2.ReadDataFile("teams/t1.json", &got); err != nil {
			t.Fatalf("ReadDataFile: %v", err)
		}
		if got.Name != "Secret" {
			t.Errorf("Name = %q", got.Name)
		}

		if _, err := OpenStorage(dir, ""); !errors.Is(err, ErrUnencryptedStart) {
			t.Errorf("OpenStorage without passphrase = %v, want ErrUnencryptedStart", err)
		}
		if _, err := OpenStorage(dir, "wrong"); err == nil {
			t.Errorf("OpenStorage with the wrong passphrase should fail")
		}
	})
}
