// Command dispatcherd wires the grading dispatcher core together and
// runs it as a standalone process: config from the environment, a
// pluggable store/sinks/adapters, and the dispatcher's periodic tick
// loop. HTTP routing, auth, and the persistence/source-hosting
// integrations themselves stay out of scope (spec §1) — this binary
// only exposes /health, /metrics and the /ws result-observation
// socket, mirroring the teacher's
// control_plane/main.go wiring style without its API surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/classytest/dispatcher/internal/config"
	"github.com/classytest/dispatcher/internal/container"
	"github.com/classytest/dispatcher/internal/dispatcher"
	"github.com/classytest/dispatcher/internal/grading"
	"github.com/classytest/dispatcher/internal/idempotency"
	"github.com/classytest/dispatcher/internal/model"
	"github.com/classytest/dispatcher/internal/observability"
	"github.com/classytest/dispatcher/internal/progression"
	"github.com/classytest/dispatcher/internal/sink"
	"github.com/classytest/dispatcher/internal/store"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := openStore(ctx)
	dedup := openIdempotencyStore()

	runtime, err := container.NewDockerRuntime(cfg.DockerHost, cfg.SSLCertPath, cfg.SSLKeyPath)
	if err != nil {
		log.Fatalf("dispatcherd: failed to build container runtime: %v", err)
	}

	httpResultSink := sink.NewHTTPResultSink(cfg.WebhookURL())
	wsResultSink := sink.NewWebSocketResultSink()
	gradeSink := sink.NewHTTPGradeSink(cfg.WebhookURL())
	machine := progression.NewMachine(s, progression.Thresholds{PassScore: cfg.PassThreshold})

	go wsResultSink.Run(ctx)

	disp := dispatcher.New(dispatcher.Config{
		SlotsExpress:    cfg.NumSlotsExpress,
		SlotsStandard:   cfg.NumSlotsStandard,
		SlotsRegression: cfg.NumSlotsRegression,
		WorkDir:         os.TempDir() + "/dispatcher-jobs",
	}, sink.NewMultiResultSink(httpResultSink, wsResultSink), gradeSink, grading.GitCheckout{}, runtime, dedup)

	// ProcessExecution is the extension point §4.B names: fold a
	// completed result into the progression walk for every person it
	// touches, so D-level gating stays current without a separate
	// poller.
	disp.ProcessExecution = func(ctx context.Context, result model.AutoTestResult) error {
		repo, err := s.GetRepository(ctx, result.RepoID)
		if err != nil || repo == nil {
			log.Printf("dispatcherd: no repository %s for completed result %s/%s", result.RepoID, result.CommitURL, result.DelivID)
			return err
		}

		personIDs := make([]string, 0, len(repo.Teams)+1)
		if repo.OwnerID != "" {
			personIDs = append(personIDs, repo.OwnerID)
		}
		for _, teamID := range repo.Teams {
			team, err := s.GetTeam(ctx, teamID)
			if err != nil || team == nil {
				continue
			}
			personIDs = append(personIDs, team.Members...)
		}

		for _, personID := range personIDs {
			status, err := machine.ComputeStatusString(ctx, personID)
			if err != nil {
				log.Printf("dispatcherd: progression recompute failed for %s: %v", personID, err)
				continue
			}
			observability.ProgressionStatus.WithLabelValues(status.String()).Inc()
		}
		return nil
	}

	log.Printf("dispatcherd: starting (course=%s org=%s express=%d standard=%d regression=%d)",
		cfg.CourseName, cfg.Org, cfg.NumSlotsExpress, cfg.NumSlotsStandard, cfg.NumSlotsRegression)

	go disp.Run(ctx, dispatcher.DefaultTickInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", wsResultSinkHandler(wsResultSink))

	server := &http.Server{Addr: ":" + os.Getenv("HEALTH_PORT"), Handler: mux}
	if server.Addr == ":" {
		server.Addr = ":8099"
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("dispatcherd: health server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("dispatcherd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), dispatcher.DefaultTickInterval*10)
	defer cancel()
	server.Shutdown(shutdownCtx)
}

// openStore selects PostgresStore when DATABASE_URL is set, else the
// in-memory default (spec §6 Persistence: "referenced only by the
// interfaces the core consumes").
func openStore(ctx context.Context) store.Store {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			log.Fatalf("dispatcherd: failed to connect to postgres: %v", err)
		}
		log.Println("dispatcherd: using PostgresStore")
		return pg
	}
	log.Println("dispatcherd: DATABASE_URL not set, using in-memory store")
	return store.NewMemoryStore()
}

// openIdempotencyStore selects a Redis-backed dedup guard when
// REDIS_ADDR is set, else the in-memory fallback.
func openIdempotencyStore() *idempotency.Store {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		log.Println("dispatcherd: REDIS_ADDR not set, using in-memory idempotency store")
		return idempotency.NewMemoryStore()
	}
	log.Printf("dispatcherd: using Redis idempotency store at %s", addr)
	return idempotency.NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), 0)
}

// wsResultSinkHandler upgrades /ws requests into a registered observer
// of hub. It only reads (and discards) incoming frames to notice when
// the client goes away; the connection is otherwise write-only from
// the dispatcher's side.
func wsResultSinkHandler(hub *sink.WebSocketResultSink) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("dispatcherd: websocket upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
		go func() {
			defer hub.Unregister(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
