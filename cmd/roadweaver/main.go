package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roadweaver/internal/config"
	"roadweaver/internal/events"
	"roadweaver/internal/scheduler"
	"roadweaver/internal/store"
	"roadweaver/internal/weaver"
)

func openBackend(kind, dir string) (store.Backend, error) {
	switch kind {
	case "memory":
		return store.NewMemoryBackend(), nil
	case "file":
		return store.NewFileBackend(dir)
	case "level":
		return store.OpenLevelBackend(dir)
	default:
		return nil, fmt.Errorf("unknown store %q (memory, file or level)", kind)
	}
}

// tickLoop drives OnWorldTick for every loaded world until ctx is done.
func tickLoop(ctx context.Context, m *weaver.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range m.Worlds() {
				if _, err := m.OnWorldTick(id); err != nil && !errors.Is(err, scheduler.ErrPoolSaturated) {
					log.Printf("⚠️  tick %s: %v\n", id, err)
				}
			}
		}
	}
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	configPath := flag.String("config", "roadweaver.json", "config file (missing file means defaults)")
	storeKind := flag.String("store", "file", "persistence backend: memory, file or level")
	dataDir := flag.String("data", "data", "directory for the file and level stores")
	seed := flag.Int64("seed", 1, "default world seed")
	landmarks := flag.String("landmarks", "", "GeoJSON file of landmark points (default: village grid)")
	tick := flag.Duration("tick", 50*time.Millisecond, "world tick interval")
	flag.Parse()

	log.Println("========================================")
	log.Println("🚀 Road Network Server")
	log.Println("========================================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("   Widths: %v, step budget: %d, workers: %d\n", cfg.Widths, cfg.StepBudget, cfg.Workers)
	log.Printf("   Concurrent roads per world: %d\n", cfg.MaxConcurrentRoadGeneration)

	backend, err := openBackend(*storeKind, *dataDir)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer backend.Close()
	log.Printf("💾 Store: %s (%s)\n", *storeKind, *dataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(256, log.Default())
	go hub.Run(ctx)

	manager, err := weaver.NewManager(cfg, backend, weaver.WithSink(hub), weaver.WithLogger(log.Default()))
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	go tickLoop(ctx, manager, *tick)

	srv := &http.Server{Addr: *addr, Handler: newServer(manager, cfg, hub, *seed, *landmarks).routes()}

	log.Printf("Server starting on %s\n", *addr)
	log.Println("")
	log.Println("Endpoints:")
	log.Println("  POST /worlds/load      - Load a world and discover landmarks")
	log.Println("  POST /worlds/unload    - Cancel a world's jobs and unload it")
	log.Println("  POST /worlds/tick      - Admit one queued connection now")
	log.Println("  POST /worlds/chunk     - Report a generated chunk, get road placements")
	log.Println("  POST /worlds/player    - Update the player position")
	log.Println("  GET  /worlds/network   - Road network as GeoJSON")
	log.Println("  GET  /events           - Connection status websocket feed")
	log.Println("  GET  /health           - Check server status")
	log.Println("========================================")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v\n", err)
	}
	manager.OnShutdown()
	manager.Wait()
	log.Println("✅ Bye")
}
