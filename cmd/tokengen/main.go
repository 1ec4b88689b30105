// Command tokengen mints HS256 access tokens for local development. The
// tokens match what the server's authentication middleware expects; they
// will not work against environments using the city API gateway.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTTL = 15 * time.Minute

func main() {
	userID := flag.String("user-id", "", "subject user id (UUID), generated if empty")
	username := flag.String("username", "devuser", "preferred_username claim")
	clientID := flag.String("client-id", "", "azp claim naming the calling service's OAuth client")
	key := flag.String("key", os.Getenv("TOKEN_SIGNING_KEY"), "HS256 signing key (defaults to TOKEN_SIGNING_KEY)")
	ttl := flag.Duration("ttl", defaultTTL, "token time-to-live")
	flag.Parse()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "a signing key is required: pass -key or set TOKEN_SIGNING_KEY")
		os.Exit(1)
	}
	subject := *userID
	if subject == "" {
		subject = uuid.NewString()
	} else if _, err := uuid.Parse(subject); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -user-id: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":                subject,
		"preferred_username": *username,
		"iat":                now.Unix(),
		"exp":                now.Add(*ttl).Unix(),
	}
	if *clientID != "" {
		claims["azp"] = *clientID
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
