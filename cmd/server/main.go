package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exameye/shield/internal/config"
	"exameye/shield/internal/database"
	"exameye/shield/internal/handlers"
	"exameye/shield/internal/services"
	"exameye/shield/internal/ws"
)

var httpServer *http.Server

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}

	log.Println("Starting...")
	log.Printf("HTTP port: %s", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DSNForLog())
	log.Printf("Environment: %s", cfg.Environment)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	if err := database.InitDB(cfg.DSN()); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	metrics := services.GetMetrics()
	hub := ws.NewHub(metrics)
	h := handlers.NewHandlers(hub, metrics, cfg.CORSOrigins)

	log.Println("Starting HTTP server...")
	go startHTTPServer(cfg.HTTPPort, hub, h)

	<-done
	log.Println("Shutting down...")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		log.Println("Stopping HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		} else {
			log.Println("HTTP server gracefully stopped")
		}
	}

	log.Println("Closing WebSocket connections...")
	hub.CloseAll()
	log.Println("All WebSocket connections closed...")

	log.Println("Goodbye!")
}

func startHTTPServer(port string, hub *ws.Hub, h *handlers.Handlers) {
	if len(port) > 0 && port[0] == ':' {
		port = port[1:]
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws/admin", hub.HandleAdmin)

	mux.HandleFunc("POST /api/students/register", h.RegisterStudent)
	mux.HandleFunc("POST /api/sessions/start", h.StartSession)
	mux.HandleFunc("PUT /api/sessions/{id}/end", h.EndSession)
	mux.HandleFunc("GET /api/sessions/active/list", h.GetActiveSessions)
	mux.HandleFunc("GET /api/admin/sessions/all", h.GetAllSessions)

	mux.HandleFunc("POST /api/violations/report", h.ReportViolation)
	mux.HandleFunc("GET /api/violations/recent", h.GetRecentViolations)
	mux.HandleFunc("GET /api/violations/timeline", h.GetViolationsTimeline)
	mux.HandleFunc("GET /api/violations/session/{id}", h.GetSessionViolations)
	mux.HandleFunc("GET /api/violations/student/{id}", h.GetStudentViolations)

	mux.HandleFunc("GET /api/admin/stats", h.GetStats)
	mux.HandleFunc("GET /api/admin/statistics/average", h.GetAverageStatistics)
	mux.HandleFunc("GET /api/admin/export/summary.csv", h.ExportSummaryCSV)
	mux.HandleFunc("GET /api/admin/export/report.html", h.ExportReportHTML)
	mux.HandleFunc("GET /api/health", h.Health)

	httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("HTTP server listening on port %s", port)
	log.Printf("WebSocket:  ws://localhost:%s/ws/admin", port)
	log.Printf("REST API:   http://localhost:%s/api/*", port)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to serve HTTP: %v", err)
	}
}
