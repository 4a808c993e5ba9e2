package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mohasbks/advanced-cid-bot/internal/config"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/token"
)

// gentoken mints a service token for one of the bot surfaces. The gateway
// process and the admin panel each get their own token; rotation is a
// re-run with the same flags.
func main() {
	consumer := flag.String("consumer", "", "name of the calling service, e.g. telegram-gateway")
	scope := flag.String("scope", token.ScopeGateway, "token scope: gateway or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime override, e.g. 720h (default: SERVICE_TOKEN_TTL)")
	flag.Parse()

	if *consumer == "" {
		log.Fatal("gentoken: -consumer is required")
	}
	if *scope != token.ScopeGateway && *scope != token.ScopeAdmin {
		log.Fatalf("gentoken: unknown scope %q (want %q or %q)", *scope, token.ScopeGateway, token.ScopeAdmin)
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("gentoken: JWT_SECRET is not configured")
	}

	lifetime := cfg.ServiceTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	svc := token.NewService(cfg.JWTSecret, lifetime)
	signed, err := svc.Generate(*consumer, *scope)
	if err != nil {
		log.Fatalf("gentoken: %v", err)
	}

	fmt.Printf("consumer: %s\nscope:    %s\nexpires:  %s\n\n%s\n",
		*consumer, *scope, time.Now().Add(svc.TTL()).UTC().Format(time.RFC3339), signed)
}
