package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/stonkstreet/stonkstreet/internal/game"
	"github.com/stonkstreet/stonkstreet/internal/quotes"
)

// sessionClosedMessage is the player-facing rejection for equity trades
// outside exchange hours.
const sessionClosedMessage = "Stock Market Closed! Market hours: Mon-Fri 9:30 AM - 4 PM ET. Try crypto instead!"

type errorResponse struct {
	Error string `json:"error"`
}

type tradeRequest struct {
	Ticker   string          `json:"ticker"`
	Side     string          `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
}

type usernameSyncRequest struct {
	Username string `json:"username"`
}

func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeGameError maps service errors onto HTTP statuses and
// player-facing messages.
func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrSessionClosed):
		writeError(w, http.StatusBadRequest, sessionClosedMessage)
	case errors.Is(err, quotes.ErrUnknownSymbol):
		writeError(w, http.StatusBadRequest, "Invalid ticker")
	case errors.Is(err, game.ErrInvalidSide):
		writeError(w, http.StatusBadRequest, "Side must be buy or sell")
	case errors.Is(err, game.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "Quantity must be positive")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	rt := quotes.ParseRequestType(r.URL.Query().Get("type"))
	writeJSON(w, http.StatusOK, s.svc.Stocks(r.Context(), rt))
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Portfolio(r.Context(), userID(r))
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	res, err := s.svc.Trade(r.Context(), userID(r), req.Ticker, req.Side, req.Quantity)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.History(r.Context(), userID(r))
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleUserHistory is the public read of any user's journal, used by
// profile pages.
func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.History(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		n = parsed
	}

	entries, err := s.svc.Leaderboard(r.Context(), n)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePreviousWinners(w http.ResponseWriter, r *http.Request) {
	daysAgo := 1
	if raw := r.URL.Query().Get("daysAgo"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "daysAgo must be a positive integer")
			return
		}
		daysAgo = parsed
	}

	snap, found, err := s.svc.PreviousWinners(r.Context(), daysAgo)
	if err != nil {
		writeGameError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "No archive for that day")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUsernameSync(w http.ResponseWriter, r *http.Request) {
	var req usernameSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if err := s.svc.SyncUsername(r.Context(), userID(r), req.Username); err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "Not found")
}
