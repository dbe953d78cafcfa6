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
	"log"
	"net/http"
	"slices"
	"strings"
)

type contextKey struct{}

// userIDKey is the context key for the authenticated user's ID (email).
// The associated value is always a string.
var userIDKey contextKey

// getUserID returns the UserID from the request context, if present.
func getUserID(r *http.Request) string {
	if val := r.Context().Value(userIDKey); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// normalizeEmail ensures consistent casing and whitespace for User IDs.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail obscures an email address for safe logging.
// e.g. "user@example.com" -> "u***@example.com"
func maskEmail(email string) string {
	if email == "" {
		return "<empty>"
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || len(parts[0]) < 1 {
		return "****"
	}
	return string(parts[0][0]) + "***@" + parts[1]
}

type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessAdmin:
		return "admin"
	}
	return "none"
}

func containsEmail(list []string, userId string) bool {
	return slices.ContainsFunc(list, func(u string) bool { return normalizeEmail(u) == userId })
}

// permissionAccess resolves explicit per-user permissions. Public access is
// handled by the caller since team roles take precedence over it.
func permissionAccess(userId, ownerId string, p Permissions) AccessLevel {
	if userId == "" {
		return AccessNone
	}
	if normalizeEmail(ownerId) == userId {
		return AccessAdmin
	}
	for u, role := range p.Users {
		if normalizeEmail(u) != userId {
			continue
		}
		switch role {
		case PermissionWrite:
			return AccessWrite
		case PermissionRead:
			return AccessRead
		}
	}
	return AccessNone
}

// teamLookup resolves a linked team's roles. It reports false for missing
// or deleted teams.
type teamLookup func(teamId string) (Team, bool)

func storeLookup(tStore *TeamStore) teamLookup {
	return func(teamId string) (Team, bool) {
		if tStore == nil {
			return Team{}, false
		}
		t, err := tStore.LoadTeam(teamId)
		if err != nil || t.IsDeleted() {
			return Team{}, false
		}
		return *t, true
	}
}

// gameAccess resolves access from a game's metadata: owner and direct
// permissions first, then roles on the linked home and away teams, then
// public access.
func gameAccess(userId string, m GameMetadata, lookup teamLookup) AccessLevel {
	userId = normalizeEmail(userId)

	if level := permissionAccess(userId, m.OwnerID, m.Permissions); level > AccessNone {
		return level
	}

	level := AccessNone
	if userId != "" {
		for _, teamId := range []string{m.AwayTeamID, m.HomeTeamID} {
			if teamId == "" || level == AccessAdmin {
				continue
			}
			if t, ok := lookup(teamId); ok {
				level = max(level, GetTeamAccess(userId, t))
			}
		}
	}
	if level > AccessNone {
		return level
	}

	if m.Permissions.Public == PermissionRead {
		return AccessRead
	}
	return AccessNone
}

// GetGameAccess calculates the effective access level for a user on a game.
func GetGameAccess(userId string, game Game, tStore *TeamStore) AccessLevel {
	level := gameAccess(userId, game.Metadata(), storeLookup(tStore))
	log.Printf("[AUTH] user=%s gameId=%s owner=%s access=%s", maskEmail(normalizeEmail(userId)), game.ID, maskEmail(game.OwnerID), level)
	return level
}

// GetTeamAccess calculates the effective access level for a user on a team.
func GetTeamAccess(userId string, team Team) AccessLevel {
	userId = normalizeEmail(userId)
	if userId == "" {
		return AccessNone
	}
	switch {
	case normalizeEmail(team.OwnerID) == userId:
		return AccessAdmin
	case containsEmail(team.Roles.Admins, userId):
		return AccessAdmin
	case containsEmail(team.Roles.Scorekeepers, userId):
		return AccessWrite
	case containsEmail(team.Roles.Spectators, userId):
		return AccessRead
	}
	return AccessNone
}

// GetTournamentAccess calculates the effective access level for a user on
// a tournament.
func GetTournamentAccess(userId string, t Tournament) AccessLevel {
	userId = normalizeEmail(userId)
	if level := permissionAccess(userId, t.OwnerID, t.Permissions); level > AccessNone {
		return level
	}
	if t.Permissions.Public == PermissionRead {
		return AccessRead
	}
	return AccessNone
}
