// Package api is the HTTP JSON surface of the dashboard: sign-in, match
// recording, leaderboard reads, K-factor setting, and full reset.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"pingpong-elo-server/auth"
	"pingpong-elo-server/config"
	"pingpong-elo-server/ledger"
	"pingpong-elo-server/session"
)

const bearerPrefix = "Bearer "

// Notifier receives a ping whenever a session's ledger changed so live
// clients can be refreshed. Satisfied by *ws.Hub.
type Notifier interface {
	Publish(sessionID string)
}

type sessionKey struct{}

// Handler holds dependencies for API handlers.
type Handler struct {
	Config   *config.Config
	Sessions *session.Manager
	Signer   *auth.Signer
	Notify   Notifier
}

// NewHandler creates a new API handler with the given dependencies.
// notify may be nil when no live feed is attached.
func NewHandler(cfg *config.Config, sessions *session.Manager, signer *auth.Signer, notify Notifier) *Handler {
	return &Handler{
		Config:   cfg,
		Sessions: sessions,
		Signer:   signer,
		Notify:   notify,
	}
}

// Router builds the API route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/api/login", h.Login).Methods(http.MethodPost, http.MethodOptions)

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(h.sessionMiddleware)
	authed.HandleFunc("/logout", h.Logout).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/state", h.State).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/matches", h.RecordMatch).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPut, http.MethodOptions)
	authed.HandleFunc("/reset", h.Reset).Methods(http.MethodPost, http.MethodOptions)

	return r
}

// corsMiddleware sets CORS headers and short-circuits preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware validates the bearer token and puts the session in the
// request context.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			writeJSONError(w, http.StatusUnauthorized, "authorization required")
			return
		}
		token := strings.TrimSpace(authHeader[len(bearerPrefix):])
		_, sid, err := h.Signer.Verify(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		s, err := h.Sessions.Get(sid)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "session expired")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromContext retrieves the session placed by sessionMiddleware.
func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "tag", "api", "err", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// --- Login / logout ---

// LoginRequest carries either local credentials or an external IdP token.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// LoginResponse returns the session token the client uses on every
// subsequent call and on the WebSocket feed.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	KFactor  int    `json:"k_factor"`
}

// Login signs the user in and opens a fresh session with an empty ledger.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var username string
	switch {
	case req.Token != "":
		claims, err := auth.ValidateExternalToken(h.Config.AuthBaseURL, req.Token)
		if err != nil {
			slog.Info("external token rejected", "tag", "auth", "err", err)
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		username = auth.UsernameFromClaims(claims)
		if username == "" {
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
	default:
		var err error
		username, err = auth.CheckCredentials(h.Config.Users, req.Username, req.Password)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
	}

	s := h.Sessions.Create(username)
	token, err := h.Signer.Issue(username, s.ID)
	if err != nil {
		slog.Error("issue session token", "tag", "auth", "err", err)
		h.Sessions.Drop(s.ID)
		writeJSONError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	slog.Info("signed in", "tag", "auth", "user", username, "session", s.ID)
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Username: username, KFactor: s.DefaultK()})
}

// Logout drops the session and its ledger.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	h.Sessions.Drop(s.ID)
	slog.Info("signed out", "tag", "auth", "user", s.Username)
	w.WriteHeader(http.StatusNoContent)
}

// --- Dashboard state ---

// StateResponse is everything one dashboard redraw needs.
type StateResponse struct {
	Username    string               `json:"username"`
	KFactor     int                  `json:"k_factor"`
	Leaderboard []ledger.Row         `json:"leaderboard"`
	Matches     []ledger.MatchRecord `json:"matches"`
	Players     []string             `json:"players"`
}

// State returns the leaderboard, match history, and settings in one call.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	resp := StateResponse{Username: s.Username, KFactor: s.DefaultK()}
	s.Do(func(l *ledger.Ledger) {
		resp.Leaderboard = l.Rows()
		resp.Matches = l.Matches()
		resp.Players = l.Names()
	})
	writeJSON(w, http.StatusOK, resp)
}

// --- Match recording ---

// RecordMatchRequest names the winner and loser; KFactor 0 means "use the
// session default".
type RecordMatchRequest struct {
	Winner  string `json:"winner"`
	Loser   string `json:"loser"`
	KFactor int    `json:"k_factor"`
}

// RecordMatchResponse reports the applied update for display.
type RecordMatchResponse struct {
	Winner       string  `json:"winner"`
	Loser        string  `json:"loser"`
	WinnerRating float64 `json:"winner_rating"`
	LoserRating  float64 `json:"loser_rating"`
	Delta        float64 `json:"delta"`
	KFactor      int     `json:"k_factor"`
}

// RecordMatch validates the report and applies it to the session's ledger.
// The ledger trusts its caller, so every precondition is enforced here:
// non-empty distinct trimmed names and a K-factor within configured bounds.
func (h *Handler) RecordMatch(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())

	var req RecordMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	winner := strings.TrimSpace(req.Winner)
	loser := strings.TrimSpace(req.Loser)
	if winner == "" || loser == "" {
		writeJSONError(w, http.StatusBadRequest, "winner and loser are required")
		return
	}
	if winner == loser {
		writeJSONError(w, http.StatusBadRequest, "winner and loser must be different players")
		return
	}
	if len(winner) > h.Config.MaxNameLength || len(loser) > h.Config.MaxNameLength {
		writeJSONError(w, http.StatusBadRequest, "player name too long")
		return
	}

	k := req.KFactor
	if k == 0 {
		k = s.DefaultK()
	}
	if k < h.Config.KFactorMin || k > h.Config.KFactorMax {
		writeJSONError(w, http.StatusBadRequest, "k_factor out of range")
		return
	}

	var newWinner, newLoser, delta float64
	s.Do(func(l *ledger.Ledger) {
		newWinner, newLoser, delta = l.RecordMatch(winner, loser, k)
	})
	h.publish(s.ID)

	slog.Info("match recorded", "tag", "ledger",
		"user", s.Username, "winner", winner, "loser", loser, "k", k)

	writeJSON(w, http.StatusOK, RecordMatchResponse{
		Winner:       winner,
		Loser:        loser,
		WinnerRating: newWinner,
		LoserRating:  newLoser,
		Delta:        delta,
		KFactor:      k,
	})
}

// --- Settings ---

// SettingsRequest changes the session's default K-factor.
type SettingsRequest struct {
	KFactor int `json:"k_factor"`
}

// UpdateSettings sets the session's default K-factor.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.KFactor < h.Config.KFactorMin || req.KFactor > h.Config.KFactorMax {
		writeJSONError(w, http.StatusBadRequest, "k_factor out of range")
		return
	}

	s.SetDefaultK(req.KFactor)
	h.publish(s.ID)
	writeJSON(w, http.StatusOK, map[string]int{"k_factor": req.KFactor})
}

// --- Reset ---

// Reset clears the session's players and match history.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	s.Do(func(l *ledger.Ledger) {
		l.Reset()
	})
	h.publish(s.ID)

	slog.Info("ledger reset", "tag", "ledger", "user", s.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publish(sessionID string) {
	if h.Notify != nil {
		h.Notify.Publish(sessionID)
	}
}
