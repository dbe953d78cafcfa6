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

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ttbt-io/wiffkeeper/backend"
)

var (
	addr           = flag.String("addr", ":8080", "The TCP address to listen to")
	useMockAuth    = flag.Bool("use-mock-auth", false, "Use Mock Authentication. For testing purposes only.")
	debugMode      = flag.Bool("debug", false, "Enable debug mode")
	dataDir        = flag.String("data-dir", "data", "Directory for game, team and tournament data")
	tlsCert        = flag.String("tls-cert", "", "Path to main HTTP TLS certificate")
	tlsKey         = flag.String("tls-key", "", "Path to main HTTP TLS key")
	authCookieName = flag.String("auth-cookie-name", "wiffkeeper_auth", "Name of the cookie containing the JWT")
	authJWKSURL    = flag.String("auth-jwks-url", "", "Comma-separated list of [ISSUER=]URL for JWKS endpoints")
	bootstrapAdmin = flag.String("admin", "", "Email of temporary admin user for bootstrapping access policy")
)

// main starts the web server and registers the API handlers.
func main() {
	flag.Parse()

	var mainTLSCert *tls.Certificate
	if *tlsCert != "" && *tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatalf("Failed to load main TLS cert/key: %v", err)
		}
		mainTLSCert = &cert
	}

	store, err := backend.OpenStorage(*dataDir, os.Getenv("WK_MASTER_KEY"))
	if errors.Is(err, backend.ErrUnencryptedStart) {
		log.Fatalf("Critical Security Error: %v. Refusing to start in unencrypted mode.", err)
	}
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	store.EnableCompression(true)

	server, err := backend.StartServer(backend.Options{
		Addr:           *addr,
		Cert:           mainTLSCert,
		DataDir:        *dataDir,
		UseMockAuth:    *useMockAuth,
		Debug:          *debugMode,
		Storage:        store,
		AuthCookieName: *authCookieName,
		AuthJWKSURL:    *authJWKSURL,
		BootstrapAdmin: *bootstrapAdmin,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}
