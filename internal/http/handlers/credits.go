package handlers

import (
	"net/http"

	"mediagen/internal/credits"
	"mediagen/internal/domain"
	"mediagen/internal/domain/jsoncfg"
	"mediagen/internal/middleware"
)

type quoteResponse struct {
	credits.Quote
	Balance    int  `json:"balance"`
	Affordable bool `json:"affordable"`
}

func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Credits.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int{"balance": balance})
}

// CreditsQuote prices a prospective request from query parameters without
// debiting anything.
func (a *App) CreditsQuote(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	q := r.URL.Query()
	req := domain.GenerationRequest{
		Kind:            domain.Kind(q.Get("kind")),
		AspectRatio:     q.Get("aspect_ratio"),
		Width:           queryInt(r, "width", 0),
		Height:          queryInt(r, "height", 0),
		DurationSeconds: queryInt(r, "duration_seconds", 0),
	}
	if err := jsoncfg.Normalize(&req, middleware.LocaleFromContext(r.Context())); err != nil {
		a.fail(w, r, err)
		return
	}
	quote, err := a.Prices.Quote(req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	balance, err := a.Credits.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, quoteResponse{Quote: quote, Balance: balance, Affordable: balance >= quote.Cost})
}
