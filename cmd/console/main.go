package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"exameye/shield/internal/api"
	"exameye/shield/internal/config"
	"exameye/shield/internal/models"
	"exameye/shield/internal/monitor"
)

func main() {
	backendURL := flag.String("backend", "", "backend base URL (overrides BACKEND_URL)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}

	log.Printf("Operator console connecting to %s", cfg.BackendURL)

	client := api.NewClient(cfg.BackendURL)
	rec := monitor.NewReconciler(client, monitor.Options{
		RefreshInterval: cfg.RefreshInterval,
		RecentLimit:     cfg.RecentLimit,
		TimelineLimit:   cfg.TimelineLimit,
		FeedCapacity:    cfg.AlertFeedSize,
		Cue:             terminalBell,
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec.Start(ctx, wsEndpoint(cfg.BackendURL))
	defer rec.Close()

	go renderLoop(ctx, rec, cfg.RefreshInterval)

	// Commands: a session id drills in, "back" clears, "q" quits.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "q", "quit", "exit":
			return
		case "back":
			rec.ClearSelection()
		default:
			go func(id string) {
				if err := rec.SelectSession(ctx, id); err != nil {
					fmt.Fprintf(os.Stderr, "! drill-down failed: %v\n", err)
				}
			}(line)
		}
	}
}

// wsEndpoint maps the backend base URL onto the admin push channel.
func wsEndpoint(backendURL string) string {
	u := strings.Replace(backendURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return strings.TrimRight(u, "/") + "/ws/admin"
}

// terminalBell is the audible cue. Fire and forget.
func terminalBell(models.LiveAlert) {
	fmt.Print("\a")
}

func renderLoop(ctx context.Context, rec *monitor.Reconciler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			render(rec.Snapshot())
		}
	}
}

func render(s monitor.DashboardState) {
	status := "DISCONNECTED"
	if s.Connected {
		status = "LIVE"
	}

	fmt.Printf("\n[%s] %s  sessions %d/%d active, %d violations total\n",
		status, s.LastRefresh.Format("15:04:05"),
		s.Stats.ActiveSessions, s.Stats.TotalSessions, s.Stats.TotalViolations)

	for _, sess := range s.ActiveSessions {
		fmt.Printf("  %s  %-20s violations=%d started=%s\n",
			sess.ID, sess.StudentName, sess.ViolationCount, sess.StartTime.Format("15:04:05"))
	}

	if len(s.Alerts) > 0 {
		fmt.Println("  live alerts:")
		for i, a := range s.Alerts {
			if i >= 5 {
				fmt.Printf("    ... %d more\n", len(s.Alerts)-i)
				break
			}
			fmt.Printf("    [%s] %s: %s (%s)\n", a.Severity, a.StudentName, a.Message, a.ViolationType)
		}
	}

	if s.Selected != nil {
		fmt.Printf("  session %s history (%d violations):\n", s.Selected.SessionID, len(s.Selected.Violations))
		for _, v := range s.Selected.Violations {
			fmt.Printf("    %s  [%s] %s: %s\n",
				v.Timestamp.Format("15:04:05"), v.Severity, v.ViolationType, v.Message)
		}
	}
}
