package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/grpcreflect"
	"github.com/mcdev12/geoguess/go/internal/game/admin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(port string, services *Services) (*http.Server, error) {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	if err := registerServices(mux, services); err != nil {
		return nil, err
	}

	// Setup reflection for grpcui/grpcurl
	setupReflection(mux)

	// Add health check endpoint
	setupHealthCheck(mux, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}, nil
}

func registerServices(mux *http.ServeMux, services *Services) error {
	// WebSocket gateway and game state routes
	services.Gateway.RegisterRoutes(mux)

	// Admin service
	adminPath, adminHandler, err := admin.NewGameAdminServiceHandler(services.Admin)
	if err != nil {
		return fmt.Errorf("failed to create admin handler: %w", err)
	}
	mux.Handle(adminPath, adminHandler)
	return nil
}

func setupReflection(mux *http.ServeMux) {
	reflector := grpcreflect.NewStaticReflector(
		admin.GameAdminServiceName,
	)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		info := struct {
			Service     string `json:"service"`
			Sessions    int    `json:"sessions"`
			Timers      int    `json:"timers"`
			Connections int    `json:"connections"`
		}{
			Service:     "geoguess",
			Sessions:    services.Registry.Len(),
			Timers:      services.Scheduler.Len(),
			Connections: services.Gateway.GetStats().TotalConnections,
		}
		writeJSON(w, info)
	})

	if services.OutboxHealth != nil {
		mux.Handle("/outbox/health", services.OutboxHealth)
		mux.HandleFunc("/outbox/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, services.OutboxStats.Snapshot())
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
