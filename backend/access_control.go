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
	"fmt"
	"slices"
	"strings"
)

// Access policy values.
const (
	PolicyAllow = "allow"
	PolicyDeny  = "deny"
)

// accessPolicyFile is the storage file that holds the UserAccessPolicy.
const accessPolicyFile = "sys_access_policy"

// UserAccessPolicy defines global access rules and quotas. A quota of 0
// means unlimited.
type UserAccessPolicy struct {
	DefaultPolicy         string                  `json:"defaultPolicy"` // "allow" or "deny"
	DefaultMaxTeams       int                     `json:"defaultMaxTeams"`
	DefaultMaxGames       int                     `json:"defaultMaxGames"`
	DefaultMaxTournaments int                     `json:"defaultMaxTournaments"`
	DefaultDenyMessage    string                  `json:"defaultDenyMessage"`
	Admins                []string                `json:"admins"` // List of admin emails
	Users                 map[string]UserOverride `json:"users"`
}

// UserOverride defines specific access rules for a single user.
type UserOverride struct {
	Access         string `json:"access"` // "allow" or "deny"
	MaxTeams       int    `json:"maxTeams"`
	MaxGames       int    `json:"maxGames"`
	MaxTournaments int    `json:"maxTournaments"`
}

// Validate normalizes user keys to lowercase and checks the default policy.
func (p *UserAccessPolicy) Validate() error {
	if p.DefaultPolicy != PolicyAllow && p.DefaultPolicy != PolicyDeny {
		return fmt.Errorf("invalid default policy %q", p.DefaultPolicy)
	}
	users := make(map[string]UserOverride, len(p.Users))
	for email, override := range p.Users {
		users[normalizeEmail(email)] = override
	}
	p.Users = users
	if p.Admins == nil {
		p.Admins = []string{}
	}
	return nil
}

// defaultAccessPolicy is what GET /api/admin/policy returns before any
// policy has been saved.
func defaultAccessPolicy() *UserAccessPolicy {
	return &UserAccessPolicy{
		DefaultPolicy: PolicyAllow,
		Admins:        []string{},
		Users:         make(map[string]UserOverride),
	}
}

// AccessControl manages user permissions and quotas.
type AccessControl struct {
	r *Registry
	// Bootstrap admin email (from flag)
	bootstrapAdmin string
}

// NewAccessControl creates a new AccessControl service.
func NewAccessControl(r *Registry, bootstrapAdmin string) *AccessControl {
	return &AccessControl{
		r:              r,
		bootstrapAdmin: normalizeEmail(bootstrapAdmin),
	}
}

func (ac *AccessControl) isListedAdmin(email string, policy *UserAccessPolicy) bool {
	if ac.bootstrapAdmin != "" && email == ac.bootstrapAdmin {
		return true
	}
	return policy != nil && slices.ContainsFunc(policy.Admins, func(a string) bool { return strings.EqualFold(a, email) })
}

// IsAllowed checks if a user is allowed to create records.
// Returns allowed status and a denial message (if denied).
func (ac *AccessControl) IsAllowed(email string) (bool, string) {
	if email == "" {
		return false, "Authentication required"
	}
	email = normalizeEmail(email)
	policy := ac.r.GetAccessPolicy()

	if ac.isListedAdmin(email, policy) || policy == nil {
		return true, ""
	}
	if override, ok := policy.Users[email]; ok {
		if override.Access == PolicyDeny {
			return false, policy.DefaultDenyMessage
		}
		return true, ""
	}
	if policy.DefaultPolicy == PolicyDeny {
		return false, policy.DefaultDenyMessage
	}
	return true, ""
}

// IsAdmin checks if a user has admin privileges.
func (ac *AccessControl) IsAdmin(email string) bool {
	if email == "" {
		return false
	}
	return ac.isListedAdmin(normalizeEmail(email), ac.r.GetAccessPolicy())
}

// Quotas are the effective limits for one user. 0 means unlimited.
type Quotas struct {
	MaxGames       int `json:"maxGames"`
	MaxTeams       int `json:"maxTeams"`
	MaxTournaments int `json:"maxTournaments"`
}

// GetUserQuotas returns the effective limits for a user.
func (ac *AccessControl) GetUserQuotas(email string) Quotas {
	policy := ac.r.GetAccessPolicy()
	if policy == nil {
		return Quotas{}
	}
	q := Quotas{
		MaxGames:       policy.DefaultMaxGames,
		MaxTeams:       policy.DefaultMaxTeams,
		MaxTournaments: policy.DefaultMaxTournaments,
	}
	if override, ok := policy.Users[normalizeEmail(email)]; ok {
		if override.MaxGames != 0 {
			q.MaxGames = override.MaxGames
		}
		if override.MaxTeams != 0 {
			q.MaxTeams = override.MaxTeams
		}
		if override.MaxTournaments != 0 {
			q.MaxTournaments = override.MaxTournaments
		}
	}
	return q
}

// checkLimit reports an error when a user already owning currentCount
// records may not create another one.
func checkLimit(kind string, limit, currentCount int) error {
	if limit != 0 && currentCount >= limit {
		return fmt.Errorf("%s limit reached (%d)", kind, limit)
	}
	return nil
}

// CheckGameQuota verifies if a user can create a new game.
func (ac *AccessControl) CheckGameQuota(email string, currentCount int) error {
	return checkLimit("game", ac.GetUserQuotas(email).MaxGames, currentCount)
}

// CheckTeamQuota verifies if a user can create a new team.
func (ac *AccessControl) CheckTeamQuota(email string, currentCount int) error {
	return checkLimit("team", ac.GetUserQuotas(email).MaxTeams, currentCount)
}

// CheckTournamentQuota verifies if a user can create a new tournament.
func (ac *AccessControl) CheckTournamentQuota(email string, currentCount int) error {
	return checkLimit("tournament", ac.GetUserQuotas(email).MaxTournaments, currentCount)
}
