// Command devtoken mints bearer tokens for local testing. Key, issuer and
// lifetime default to JWT_SIGNING_KEY, JWT_ISSUER and JWT_TOKEN_TTL.
//
//	go run ./cmd/devtoken -subject alice
package main

import (
	"flag"
	"fmt"
	"os"

	"crowdfund/internal/jwt_token"
	"crowdfund/internal/platform/config"
	id "crowdfund/pkg/domain"
)

func main() {
	cfg, err := config.LoadJWT()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	subject := flag.String("subject", "", "caller identity to embed in the token")
	key := flag.String("key", cfg.SigningKey, "HMAC signing key")
	issuer := flag.String("issuer", cfg.Issuer, "token issuer")
	ttl := flag.Duration("ttl", cfg.TokenTTL, "token lifetime")
	flag.Parse()

	identity, err := id.ParseIdentity(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subject: %v\n", err)
		os.Exit(2)
	}
	if *key == config.DefaultSigningKey {
		fmt.Fprintln(os.Stderr, "warning: signing with the public development key")
	}
	token, err := jwttoken.NewJWTService(*key, *issuer).GenerateAccessToken(identity, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
