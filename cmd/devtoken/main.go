package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/middleware"
)

// devtoken mints a bearer token for local testing against the API.
func main() {
	_ = godotenv.Load(".env", ".env.local")

	var (
		userFlag   string
		localeFlag string
		ttlFlag    time.Duration
	)
	flag.StringVar(&userFlag, "user", "", "user ID placed in the subject claim")
	flag.StringVar(&localeFlag, "locale", "", "preferred locale claim (en or id)")
	flag.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(1)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}
	token, err := middleware.SignToken(secret, "mediagen", userID, localeFlag, ttlFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
