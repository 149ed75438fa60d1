package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
)

func main() {
	var (
		keyFlag    string
		deleteFlag bool
	)
	flag.StringVar(&keyFlag, "key", "", "DashScope API key (falls back to DASHSCOPE_API_KEY)")
	flag.BoolVar(&deleteFlag, "delete", false, "remove the stored key instead of setting it")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY"))
	}
	if key == "" && !deleteFlag {
		exitWithError(fmt.Errorf("API key is required via -key or DASHSCOPE_API_KEY"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to create pool: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "apikey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if deleteFlag {
		if err := store.DeleteToken(ctx, credentials.ProviderDashScope); err != nil {
			exitWithError(err)
		}
		fmt.Println("DashScope API key removed")
		return
	}

	props := map[string]any{"updated_by": "cli", "updated_at": time.Now().UTC().Format(time.RFC3339)}
	if err := store.SetToken(ctx, credentials.ProviderDashScope, key, props); err != nil {
		exitWithError(fmt.Errorf("failed to persist api key: %w", err))
	}
	fmt.Println("DashScope API key stored successfully")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
