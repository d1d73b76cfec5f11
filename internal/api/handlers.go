package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/susu3304/zaisekibot/internal/tracker"
)

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid top", http.StatusBadRequest)
			return
		}
		top = n
	}
	if top < 1 {
		top = 1
	}
	if top > 25 {
		top = 25
	}

	entries := a.tracker.Leaderboard(top, time.Now())
	if entries == nil {
		entries = []tracker.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	lines := a.tracker.History(limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lines)
}

func (a *API) handleMemberStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	memberID := vars["member_id"]

	total, live := a.tracker.TotalFor(memberID, time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"member_id":     memberID,
		"total_seconds": total,
		"live":          live,
		"formatted":     tracker.FormatDuration(total),
	})
}
