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

// Command readfile decodes stored records and prints them as JSON.
//
//	readfile --data-dir data games/<id>.json teams/<id>.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ttbt-io/wiffkeeper/backend"
)

var (
	dataDir = flag.String("data-dir", "data", "Directory for game, team and tournament data")
)

func recordFor(name string) any {
	switch {
	case strings.HasSuffix(name, ".meta.json"):
		return new(map[string]any)
	case strings.HasPrefix(name, "games/"):
		return new(backend.Game)
	case strings.HasPrefix(name, "tournaments/"):
		return new(backend.Tournament)
	default:
		return new(backend.Team)
	}
}

func main() {
	flag.Parse()
	store, err := backend.OpenStorage(*dataDir, os.Getenv("WK_MASTER_KEY"))
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, arg := range flag.Args() {
		if rel, err := filepath.Rel(*dataDir, arg); err == nil && !strings.HasPrefix(rel, "..") {
			arg = rel
		}
		arg = filepath.ToSlash(arg)
		obj := recordFor(arg)
		if err := store.ReadDataFile(arg, obj); err != nil {
			log.Printf("%s: %v", arg, err)
			continue
		}
		fmt.Printf("=========== %s ===========\n", arg)
		if err := enc.Encode(obj); err != nil {
			log.Printf("JSON: %s: %v", arg, err)
		}
	}
}
