package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"giveserver/internal/infra/credentials"
)

func main() {
	var (
		keyFlag      string
		providerFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "Stripe key for the selected slot (fallbacks to environment)")
	flag.StringVar(&providerFlag, "slot", "secret", "Key slot to configure (secret or publishable)")
	flag.Parse()

	slot := strings.TrimSpace(strings.ToLower(providerFlag))
	switch slot {
	case "secret", "publishable":
	case "":
		slot = "secret"
	default:
		fmt.Fprintf(os.Stderr, "unsupported slot %q\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		switch slot {
		case "publishable":
			key = strings.TrimSpace(os.Getenv("STRIPE_PUBLISHABLE_KEY"))
		default:
			key = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
		}
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "a %s key is required via -key or environment\n", slot)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := credentials.NewStore(pool, "", "")

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	var persistErr error
	switch slot {
	case "publishable":
		persistErr = store.SetStripePublishableKey(ctxExec, key)
	default:
		persistErr = store.SetStripeSecretKey(ctxExec, key)
	}
	if persistErr != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s key: %v\n", slot, persistErr)
		os.Exit(1)
	}

	fmt.Printf("stripe %s key stored successfully\n", slot)
}
