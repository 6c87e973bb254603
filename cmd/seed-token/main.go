// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/seed-foundation/seed/lib/authtoken"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:])
	case "mint":
		return runMint(args[1:])
	case "verify":
		return runVerify(args[1:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: seed-token <subcommand> [flags]

Subcommands:
  keygen    Generate the Ed25519 token-signing keypair
  mint      Mint a signed token for a principal
  verify    Verify a token and print its claims

Run 'seed-token <subcommand> --help' for subcommand flags.
`)
}

func runKeygen(args []string) error {
	var dir string
	flagSet := pflag.NewFlagSet("seed-token keygen", pflag.ContinueOnError)
	flagSet.StringVar(&dir, "dir", ".", "directory to write the keypair into")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	public, private, err := authtoken.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := authtoken.SaveKeypair(dir, public, private); err != nil {
		return err
	}
	fmt.Printf("wrote token-signing-key and token-signing-key.pub to %s\n", dir)
	return nil
}

func runMint(args []string) error {
	var keyPath, principal, audience string
	var ttl time.Duration
	flagSet := pflag.NewFlagSet("seed-token mint", pflag.ContinueOnError)
	flagSet.StringVar(&keyPath, "key", "token-signing-key", "private signing key file")
	flagSet.StringVar(&principal, "principal", "", "identity the token authenticates (required)")
	flagSet.StringVar(&audience, "audience", "seed", "deployment the token is scoped to")
	flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if principal == "" {
		return fmt.Errorf("--principal is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	privateKey, err := authtoken.LoadPrivateKey(keyPath)
	if err != nil {
		return err
	}

	encoded, err := mintToken(privateKey, principal, audience, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

// mintToken builds and signs a token, returning its base64url
// spelling.
func mintToken(privateKey ed25519.PrivateKey, principal, audience string, ttl time.Duration, now time.Time) (string, error) {
	id, err := authtoken.NewID()
	if err != nil {
		return "", err
	}
	raw, err := authtoken.Mint(privateKey, &authtoken.Token{
		Principal: principal,
		Audience:  audience,
		ID:        id,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func runVerify(args []string) error {
	var publicKeyPath, audience string
	flagSet := pflag.NewFlagSet("seed-token verify", pflag.ContinueOnError)
	flagSet.StringVar(&publicKeyPath, "public-key", "token-signing-key.pub", "public verification key file")
	flagSet.StringVar(&audience, "audience", "seed", "expected audience")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	encoded, err := readToken(flagSet.Args())
	if err != nil {
		return err
	}

	publicKey, err := authtoken.LoadPublicKey(publicKeyPath)
	if err != nil {
		return err
	}

	token, err := verifyToken(publicKey, encoded, audience, time.Now())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(claimsOf(token), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// readToken takes the token from the first positional argument, or
// stdin when there is none.
func readToken(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading token from stdin: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("no token on stdin")
	}
	return token, nil
}

func verifyToken(publicKey ed25519.PublicKey, encoded, audience string, now time.Time) (*authtoken.Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("token is not base64url: %w", err)
	}
	return authtoken.VerifyForAudienceAt(publicKey, raw, audience, now)
}

// claims is the verify subcommand's printable view of a token.
type claims struct {
	Principal string `json:"principal"`
	Audience  string `json:"audience"`
	ID        string `json:"id"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

func claimsOf(token *authtoken.Token) claims {
	return claims{
		Principal: token.Principal,
		Audience:  token.Audience,
		ID:        token.ID,
		IssuedAt:  time.Unix(token.IssuedAt, 0).UTC().Format(time.RFC3339),
		ExpiresAt: time.Unix(token.ExpiresAt, 0).UTC().Format(time.RFC3339),
	}
}
