package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/susu3304/zaisekibot/internal/config"
	"github.com/susu3304/zaisekibot/internal/tracker"
)

type API struct {
	router  *mux.Router
	tracker *tracker.Tracker
	config  *config.Config
}

func New(cfg *config.Config, trk *tracker.Tracker) *API {
	api := &API{
		router:  mux.NewRouter(),
		tracker: trk,
		config:  cfg,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Public read-only endpoints
	a.router.HandleFunc("/api/leaderboard", a.handleLeaderboard).Methods("GET")
	a.router.HandleFunc("/api/history", a.handleHistory).Methods("GET")
	a.router.HandleFunc("/api/members/{member_id}/stats", a.handleMemberStats).Methods("GET")
}

func (a *API) Start() error {
	// Read-only API, so a wildcard origin without credentials is fine
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}

	handler := cors.New(corsOptions).Handler(a.router)

	log.Printf("API server listening on http://%s", a.config.WebBind)
	return http.ListenAndServe(a.config.WebBind, handler)
}
