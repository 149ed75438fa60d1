package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

const (
	ProviderDashScope = "dashscope"
)

// Store reads and writes provider API keys kept in integration_tokens. It is
// the fallback when the environment does not carry a key.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is configured.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// SetToken upserts the key for provider.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return errors.New("credentials: provider is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("credentials: %s token is required", provider)
	}
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// DeleteToken removes the stored key for provider. Deleting a missing key
// is not an error.
func (s *Store) DeleteToken(ctx context.Context, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return errors.New("credentials: provider is required")
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider); err != nil {
		return fmt.Errorf("credentials: delete %s token: %w", provider, err)
	}
	return nil
}

// Resolve prefers the explicit key and falls back to the stored one.
func (s *Store) Resolve(ctx context.Context, provider, explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	return s.Token(ctx, provider)
}
