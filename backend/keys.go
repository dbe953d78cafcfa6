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
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

const masterKeyFile = "master.key"

// ErrUnencryptedStart is returned by OpenStorage when the data directory
// holds a master key but no passphrase was given.
var ErrUnencryptedStart = errors.New("master key exists but no passphrase was provided")

// OpenStorage opens the record storage under dataDir. With a passphrase the
// data is encrypted with the master key in dataDir, which is created on
// first use. Without one the data is stored in the clear.
func OpenStorage(dataDir, passphrase string) (*storage.Storage, error) {
	keyFile := filepath.Join(dataDir, masterKeyFile)
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%s: %w", keyFile, ErrUnencryptedStart)
		}
		log.Println("Warning: No passphrase provided. Data will be stored UNENCRYPTED.")
		return storage.New(dataDir, nil), nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	masterKey, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	switch {
	case err == nil:
		log.Println("Loaded master encryption key.")
	case errors.Is(err, os.ErrNotExist):
		log.Println("Initializing new master encryption key...")
		if masterKey, err = crypto.CreateMasterKey(); err != nil {
			return nil, fmt.Errorf("create master key: %w", err)
		}
		if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
			return nil, fmt.Errorf("save master key: %w", err)
		}
	default:
		return nil, fmt.Errorf("read master key: %w", err)
	}
	return storage.New(dataDir, masterKey), nil
}
