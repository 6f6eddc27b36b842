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

	"starfall-server/config"
	"starfall-server/match"
	"starfall-server/server"
	"starfall-server/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path (empty disables match history)")
	flag.Parse()

	var db *store.DB
	var rec match.Recorder
	if *dbPath != "" {
		db, err = store.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer db.Close()
		recorder := store.NewRecorder(db)
		defer func() {
			recorder.Stop()
			if n := recorder.Dropped(); n > 0 {
				log.Printf("store: %d records dropped", n)
			}
		}()
		rec = recorder
		log.Printf("Match history in %s", *dbPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := server.NewHub(cfg.Server(), db, rec)
	go hub.Run(ctx)

	mux := server.SetupRoutes(hub)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s", *addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	srv.Shutdown(shutdownCtx)
	cancel()
	<-hub.Done()
}
