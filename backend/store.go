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
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/c2FmZQ/storage"
)

// docStore persists one collection of JSON records, each in its own file
// with an optional metadata sidecar next to it. Reads are served from an
// in-memory copy of the last saved bytes.
type docStore struct {
	DataDir string
	Debug   bool

	kind    string
	storage *storage.Storage
	mu      sync.Map // id -> *sync.RWMutex
	cache   sync.Map // id -> []byte
}

func newDocStore(dataDir, kind string, s *storage.Storage) docStore {
	return docStore{DataDir: dataDir, kind: kind, storage: s}
}

func (ds *docStore) lock(id string) *sync.RWMutex {
	m, _ := ds.mu.LoadOrStore(id, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

func (ds *docStore) filename(id string) string {
	return filepath.Join(ds.kind, fmt.Sprintf("%s.json", url.PathEscape(id)))
}

func (ds *docStore) metaFilename(id string) string {
	return filepath.Join(ds.kind, fmt.Sprintf("%s.meta.json", url.PathEscape(id)))
}

// save writes the record and then its sidecar. A sidecar failure is logged
// and otherwise ignored since listing falls back to the main file.
func (ds *docStore) save(id string, v, meta any) error {
	mutex := ds.lock(id)
	mutex.Lock()
	defer mutex.Unlock()

	if err := ds.storage.SaveDataFile(ds.filename(id), v); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	if meta != nil {
		if err := ds.storage.SaveDataFile(ds.metaFilename(id), meta); err != nil {
			log.Printf("Warning: Failed to save metadata sidecar for %s %s: %v", ds.kind, id, err)
		}
	}
	if b, err := json.Marshal(v); err == nil {
		ds.cache.Store(id, b)
	}
	return nil
}

// load reads the record into v. It returns os.ErrNotExist when the record
// was never saved or has been purged.
func (ds *docStore) load(id string, v any) error {
	if val, ok := ds.cache.Load(id); ok {
		if err := json.Unmarshal(val.([]byte), v); err == nil {
			if ds.Debug {
				log.Printf("[CACHE] Hit for %s %s", ds.kind, id)
			}
			return nil
		}
		ds.cache.Delete(id)
	}
	if ds.Debug {
		log.Printf("[CACHE] Miss for %s %s", ds.kind, id)
	}

	mutex := ds.lock(id)
	mutex.RLock()
	defer mutex.RUnlock()

	if err := ds.storage.ReadDataFile(ds.filename(id), v); err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}
		return fmt.Errorf("ReadDataFile: %w", err)
	}
	if b, err := json.Marshal(v); err == nil {
		ds.cache.Store(id, b)
	}
	return nil
}

func (ds *docStore) loadMeta(id string, v any) error {
	return ds.storage.ReadDataFile(ds.metaFilename(id), v)
}

// purge removes the record and its sidecar from disk.
func (ds *docStore) purge(id string) error {
	mutex := ds.lock(id)
	mutex.Lock()
	defer mutex.Unlock()

	ds.cache.Delete(id)

	if err := os.Remove(filepath.Join(ds.DataDir, ds.filename(id))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not purge %s file: %w", ds.kind, err)
	}
	if err := os.Remove(filepath.Join(ds.DataDir, ds.metaFilename(id))); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not purge meta file for %s %s: %v", ds.kind, id, err)
	}
	return nil
}

// scan lists the ids found on disk and reports which of them have a sidecar.
func (ds *docStore) scan() (ids []string, hasMeta map[string]bool, err error) {
	files, err := os.ReadDir(filepath.Join(ds.DataDir, ds.kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("could not read %s directory: %w", ds.kind, err)
	}
	hasMeta = make(map[string]bool)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if encoded, ok := strings.CutSuffix(name, ".meta.json"); ok {
			if id, err := url.PathUnescape(encoded); err == nil {
				hasMeta[id] = true
			}
			continue
		}
		if encoded, ok := strings.CutSuffix(name, ".json"); ok {
			if id, err := url.PathUnescape(encoded); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids, hasMeta, nil
}

// listMetadata yields the metadata of every record, reading sidecars where they
// exist and deriving metadata from the full record otherwise.
func listMetadata[M any](ds *docStore, fromRecord func(id string) (M, error)) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		ids, hasMeta, err := ds.scan()
		if err != nil {
			var zero M
			yield(zero, err)
			return
		}
		for _, id := range ids {
			if hasMeta[id] {
				var m M
				err := ds.loadMeta(id, &m)
				if err == nil {
					if !yield(m, nil) {
						return
					}
					continue
				}
				log.Printf("Registry Warning: failed to load metadata for %s: %v. Falling back to main file.", id, err)
			}
			m, err := fromRecord(id)
			if err != nil {
				log.Printf("Registry Warning: failed to load %s %s from disk: %v", ds.kind, id, err)
				continue
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// listRecords yields every full record in the collection.
func listRecords[T any](ds *docStore, load func(id string) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		ids, _, err := ds.scan()
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for _, id := range ids {
			v, err := load(id)
			if err != nil {
				log.Printf("Warning: could not load %s '%s': %v", ds.kind, id, err)
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
