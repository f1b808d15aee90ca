// ABOUTME: Credential subcommands: JWT issuance and stored API key management
// ABOUTME: token signs with auth.jwt_secret; apikey create/list/revoke work on database.path

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/rcon-gateway/internal/auth"
	"github.com/2389/rcon-gateway/internal/config"
	"github.com/2389/rcon-gateway/internal/gateway"
	"github.com/2389/rcon-gateway/internal/store"
)

// defaultTokenTTL is the lifetime of tokens issued without --ttl.
const defaultTokenTTL = 30 * 24 * time.Hour

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "principal name recorded in the token (required)")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token lifetime; 0 never expires")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := issueToken(cfg, *subject, *ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	if *ttl > 0 {
		color.New(color.FgHiBlack).Fprintf(os.Stderr, "expires %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	}
	return nil
}

func issueToken(cfg *config.Config, subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("--subject is required")
	}
	if ttl < 0 {
		return "", errors.New("--ttl must not be negative")
	}
	if cfg.Auth.JWTSecret == "" {
		return "", errors.New("auth.jwt_secret is not configured")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return token, nil
}

func runAPIKey(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: apikey create --name NAME | list | revoke --id ID")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := gateway.OpenStore(cfg)
	if err != nil {
		return err
	}
	if s == nil {
		return errors.New("database.path is not configured")
	}
	defer s.Close()

	return apiKeyCommand(ctx, s, args, out)
}

func apiKeyCommand(ctx context.Context, keys store.APIKeyStore, args []string, out io.Writer) error {
	sub, rest := args[0], args[1:]
	switch sub {
	case "create":
		fs := flag.NewFlagSet("apikey create", flag.ContinueOnError)
		name := fs.String("name", "", "label for the key (required)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			return errors.New("--name is required")
		}

		key, token, err := auth.NewAPIKey(strings.TrimSpace(*name))
		if err != nil {
			return err
		}
		if err := keys.CreateAPIKey(ctx, key); err != nil {
			return fmt.Errorf("saving api key: %w", err)
		}

		color.New(color.FgGreen).Fprintf(out, "  ✓ Created API key %s (%s)\n", key.ID, key.Name)
		fmt.Fprintf(out, "  Token: %s\n", token)
		color.New(color.FgYellow).Fprintln(out, "  Store it now; it cannot be shown again.")
		return nil

	case "list":
		list, err := keys.ListAPIKeys(ctx)
		if err != nil {
			return fmt.Errorf("listing api keys: %w", err)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCREATED\tLAST USED\tSTATUS")
		for _, k := range list {
			lastUsed := "never"
			if k.LastUsedAt != nil {
				lastUsed = k.LastUsedAt.Format(time.DateTime)
			}
			status := "active"
			if k.Revoked() {
				status = "revoked"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Format(time.DateTime), lastUsed, status)
		}
		return tw.Flush()

	case "revoke":
		fs := flag.NewFlagSet("apikey revoke", flag.ContinueOnError)
		id := fs.String("id", "", "key ID to revoke (required)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *id == "" {
			return errors.New("--id is required")
		}
		if err := keys.RevokeAPIKey(ctx, *id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no api key with id %s", *id)
			}
			return fmt.Errorf("revoking api key: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "  ✓ Revoked API key %s\n", *id)
		return nil

	default:
		return fmt.Errorf("unknown apikey command: %s", sub)
	}
}
