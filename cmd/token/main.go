// Command token mints access tokens for operators and chat adapters using
// the service's configured secret.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spec-kit/mythicmate/internal/auth"
	"github.com/spec-kit/mythicmate/internal/config"
	"github.com/spec-kit/mythicmate/internal/domain"
)

func main() {
	subject := flag.String("subject", string(domain.SubjectAdapter), "subject type: OPERATOR or ADAPTER")
	id := flag.String("id", "", "subject identifier recorded in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime; 0 uses AUTH_ACCESS_TOKEN_TTL_MINUTES")
	flag.Parse()

	if *id == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	token, expiresAt, err := tokens.GenerateToken(*id, domain.SubjectType(strings.ToUpper(*subject)), *ttl)
	if err != nil {
		log.Fatalf("failed to mint token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
}
