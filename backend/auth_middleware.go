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
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const (
	defaultAuthCookieName = "wiffkeeper_auth"
	jwksFetchTimeout      = 10 * time.Second
	jwksMinRefresh        = time.Minute
)

// jwksSource is one JWKS endpoint, optionally bound to a token issuer.
type jwksSource struct {
	issuer string
	url    string

	mu          sync.RWMutex
	keys        jwk.Set
	lastRefresh time.Time
}

// parseJWKSSources parses a comma-separated list of [ISSUER=]URL.
func parseJWKSSources(spec string) []*jwksSource {
	var out []*jwksSource
	for item := range strings.SplitSeq(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		src := &jwksSource{url: item}
		if iss, u, ok := strings.Cut(item, "="); ok && !strings.Contains(iss, "://") {
			src.issuer, src.url = iss, u
		}
		out = append(out, src)
	}
	return out
}

func (s *jwksSource) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), jwksFetchTimeout)
	defer cancel()

	set, err := jwk.Fetch(ctx, s.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	s.mu.Lock()
	s.keys = set
	s.lastRefresh = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *jwksSource) find(kid string) (any, error) {
	s.mu.RLock()
	set := s.keys
	s.mu.RUnlock()
	if set == nil {
		return nil, fmt.Errorf("JWKS not initialized")
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to materialize key: %w", err)
	}
	return raw, nil
}

// lookup finds kid, refreshing the key set at most once a minute when the
// key is unknown.
func (s *jwksSource) lookup(kid string) (any, error) {
	key, err := s.find(kid)
	if err == nil {
		return key, nil
	}
	s.mu.RLock()
	stale := time.Since(s.lastRefresh) > jwksMinRefresh
	s.mu.RUnlock()
	if !stale {
		return nil, err
	}
	if err := s.refresh(); err != nil {
		log.Printf("[AUTH] Error refreshing JWKS %s: %v", s.url, err)
		return nil, err
	}
	return s.find(kid)
}

// keyFunc returns the jwt.Keyfunc that resolves a token's signing key
// among the configured sources.
func keyFunc(sources []*jwksSource) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token missing 'kid' header")
		}
		iss, _ := token.Claims.GetIssuer()

		var lastErr error = fmt.Errorf("no JWKS configured")
		for _, src := range sources {
			if src.issuer != "" && src.issuer != iss {
				continue
			}
			key, err := src.lookup(kid)
			if err == nil {
				return key, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// jwtAuthMiddleware handles JWT authentication using JWKS. Requests without
// a valid token proceed anonymously.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	sources := parseJWKSSources(opts.AuthJWKSURL)
	if len(sources) == 0 {
		log.Println("Warning: No AuthJWKSURL provided. JWT validation will fail unless MockAuth is used.")
	}
	for _, src := range sources {
		if err := src.refresh(); err != nil {
			log.Printf("Warning: Failed to fetch JWKS on startup: %v", err)
		}
	}
	cookieName := opts.AuthCookieName
	if cookieName == "" {
		cookieName = defaultAuthCookieName
	}
	kf := keyFunc(sources)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := jwt.Parse(cookie.Value, kf)
		if err != nil || !token.Valid {
			if opts.Debug && err != nil {
				log.Printf("JWT Validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if email, ok := claims["email"].(string); ok && email != "" {
				ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(email))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
