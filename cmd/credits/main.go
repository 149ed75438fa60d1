package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/credits"
	"mediagen/internal/infra"
)

func main() {
	var (
		userFlag   string
		grantFlag  int
		setFlag    int
		reasonFlag string
	)
	flag.StringVar(&userFlag, "user", "", "user ID whose balance changes")
	flag.IntVar(&grantFlag, "grant", 0, "credits to add (negative to claw back)")
	flag.IntVar(&setFlag, "set", -1, "overwrite the balance with this value")
	flag.StringVar(&reasonFlag, "reason", "manual", "reason recorded with a grant")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if grantFlag == 0 && setFlag < 0 {
		exitWithError(errors.New("either -grant or -set must be provided"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	service := credits.NewPGService(infra.NewSQLRunner(pool, logger))

	var balance int
	if setFlag >= 0 {
		balance, err = service.Set(ctx, userID, setFlag)
	} else {
		balance, err = service.Grant(ctx, userID, grantFlag, reasonFlag)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to update balance: %w", err))
	}
	fmt.Printf("User %s balance=%d\n", userID, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
