package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMatchLimit = 20
	maxMatchLimit     = 100
)

// MatchView is the JSON shape of one finished match.
type MatchView struct {
	RoomID     string    `json:"roomId"`
	GameType   string    `json:"gameType"`
	Winner     string    `json:"winner"`
	WinnerName string    `json:"winnerName,omitempty"`
	PlayerX    string    `json:"playerX"`
	PlayerO    string    `json:"playerO"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (a *Acceptor) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("writing http response", zap.Error(err))
	}
}

func (a *Acceptor) serveHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Acceptor) serveRooms(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.handler.Directory())
}

func (a *Acceptor) serveMatches(w http.ResponseWriter, r *http.Request) {
	if a.matches == nil {
		http.Error(w, "match history disabled", http.StatusNotFound)
		return
	}
	limit := defaultMatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMatchLimit {
			http.Error(w, "limit must be 1-100", http.StatusBadRequest)
			return
		}
		limit = n
	}

	results, err := a.matches.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Warn("listing recent matches", zap.Error(err))
		http.Error(w, "match history unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make([]MatchView, 0, len(results))
	for _, res := range results {
		out = append(out, MatchView{
			RoomID:     res.RoomID,
			GameType:   res.GameType,
			Winner:     res.Winner,
			WinnerName: res.WinnerName,
			PlayerX:    res.PlayerX,
			PlayerO:    res.PlayerO,
			FinishedAt: res.FinishedAt,
		})
	}
	a.writeJSON(w, http.StatusOK, out)
}
