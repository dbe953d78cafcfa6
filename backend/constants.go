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

// Schema versions of stored records. Records written before versioning
// carry no schemaVersion and are upgraded on load.
const (
	SchemaVersionV1      = 1
	CurrentSchemaVersion = SchemaVersionV1
)

const CurrentAppVersion = "0.1.0"

// StatusDeleted marks a tombstone record.
const StatusDeleted = "deleted"

// Collection directories under the data dir.
const (
	gamesDir       = "games"
	teamsDir       = "teams"
	tournamentsDir = "tournaments"
)

// Permission values stored in Permissions.
const (
	PermissionNone  = "none"
	PermissionRead  = "read"
	PermissionWrite = "write"
)
