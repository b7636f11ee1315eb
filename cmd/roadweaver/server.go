package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"roadweaver/internal/config"
	"roadweaver/internal/events"
	"roadweaver/internal/locate"
	"roadweaver/internal/model"
	"roadweaver/internal/network"
	"roadweaver/internal/placement"
	"roadweaver/internal/scheduler"
	"roadweaver/internal/terrain"
	"roadweaver/internal/weaver"
)

type WorldRequest struct {
	World string `json:"world"`
	Seed  int64  `json:"seed,omitempty"`
}

type ChunkRequest struct {
	World  string `json:"world"`
	ChunkX int    `json:"chunkX"`
	ChunkZ int    `json:"chunkZ"`
}

type PlayerRequest struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
}

type WorldResponse struct {
	World       string         `json:"world"`
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	Landmarks   int            `json:"landmarks"`
	Queued      int            `json:"queued"`
	InFlight    int            `json:"inFlight"`
	Connections map[string]int `json:"connections"`
}

type ChunkResponse struct {
	Placements []placement.Placement `json:"placements"`
}

// server exposes a Manager over HTTP. Each loaded world gets Perlin terrain
// and either the village grid or the landmark file as its locator.
type server struct {
	manager   *weaver.Manager
	cfg       config.Config
	hub       *events.Hub
	seed      int64
	landmarks string // optional GeoJSON landmark file

	mu      sync.Mutex
	players map[string]model.BlockPos
}

func newServer(m *weaver.Manager, cfg config.Config, hub *events.Hub, seed int64, landmarks string) *server {
	return &server{
		manager:   m,
		cfg:       cfg,
		hub:       hub,
		seed:      seed,
		landmarks: landmarks,
		players:   make(map[string]model.BlockPos),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/worlds/load", corsMiddleware(s.loadHandler))
	mux.HandleFunc("/worlds/unload", corsMiddleware(s.unloadHandler))
	mux.HandleFunc("/worlds/tick", corsMiddleware(s.tickHandler))
	mux.HandleFunc("/worlds/chunk", corsMiddleware(s.chunkHandler))
	mux.HandleFunc("/worlds/player", corsMiddleware(s.playerHandler))
	mux.HandleFunc("/worlds/network", corsMiddleware(s.networkHandler))
	mux.HandleFunc("/health", corsMiddleware(s.healthHandler))
	if s.hub != nil {
		mux.Handle("/events", s.hub)
	}
	return mux
}

// corsMiddleware adds CORS headers to allow frontend requests
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ encoding response: %v\n", err)
	}
}

// errorStatus maps manager errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, weaver.ErrUnknownWorld):
		return http.StatusNotFound
	case errors.Is(err, weaver.ErrWorldLoaded):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrPoolSaturated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, method string, dst any) bool {
	if r.Method != method {
		log.Printf("❌ Method not allowed: %s\n", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Printf("❌ Invalid request body: %v\n", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *server) status(id string) WorldResponse {
	resp := WorldResponse{World: id, Connections: map[string]int{}}
	w, ok := s.manager.World(id)
	if !ok {
		return resp
	}
	resp.Success = true
	resp.Landmarks = len(w.Snapshot().Landmarks)
	resp.Queued = len(w.Queued())
	resp.InFlight = s.manager.InFlight(id)
	for st, n := range w.Counts() {
		resp.Connections[st.String()] = n
	}
	return resp
}

func (s *server) player(id string) model.BlockPos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[id]
}

func (s *server) host(id string, seed int64) (weaver.Host, error) {
	ground := terrain.NewNoiseTerrain(seed)
	if s.landmarks != "" {
		loc, err := locate.LoadFileLocator(s.landmarks, 64)
		if err != nil {
			return weaver.Host{}, err
		}
		return weaver.Host{Terrain: ground, Locator: loc}, nil
	}
	grid := locate.NewGridLocator(seed, ground, s.cfg.StructureSearchRadius,
		locate.WithPlayer(func() model.BlockPos { return s.player(id) }))
	return weaver.Host{Terrain: ground, Locator: grid}, nil
}

// POST /worlds/load - Load a world and start building its roads
func (s *server) loadHandler(w http.ResponseWriter, r *http.Request) {
	var req WorldRequest
	if !decode(w, r, http.MethodPost, &req) {
		return
	}
	if req.World == "" {
		http.Error(w, "world is required", http.StatusBadRequest)
		return
	}
	seed := req.Seed
	if seed == 0 {
		seed = s.seed
	}
	log.Printf("🌍 Loading world %q (seed %d)\n", req.World, seed)

	host, err := s.host(req.World, seed)
	if err != nil {
		log.Printf("❌ %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := s.manager.OnWorldLoad(req.World, host); err != nil {
		log.Printf("❌ %v\n", err)
		writeJSON(w, errorStatus(err), WorldResponse{World: req.World, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.status(req.World))
}

// POST /worlds/unload - Cancel a world's jobs and drop it
func (s *server) unloadHandler(w http.ResponseWriter, r *http.Request) {
	var req WorldRequest
	if !decode(w, r, http.MethodPost, &req) {
		return
	}
	if err := s.manager.OnWorldUnload(req.World); err != nil {
		writeJSON(w, errorStatus(err), WorldResponse{World: req.World, Message: err.Error()})
		return
	}
	s.mu.Lock()
	delete(s.players, req.World)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, WorldResponse{World: req.World, Success: true, Connections: map[string]int{}})
}

// POST /worlds/tick - Run one admission round outside the ticker
func (s *server) tickHandler(w http.ResponseWriter, r *http.Request) {
	var req WorldRequest
	if !decode(w, r, http.MethodPost, &req) {
		return
	}
	resp := WorldResponse{World: req.World}
	job, err := s.manager.OnWorldTick(req.World)
	if err != nil {
		resp.Message = err.Error()
		writeJSON(w, errorStatus(err), resp)
		return
	}
	resp = s.status(req.World)
	resp.Message = "nothing admitted"
	if job != uuid.Nil {
		resp.Message = "admitted job " + job.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /worlds/chunk - Report a generated chunk and get its road placements
func (s *server) chunkHandler(w http.ResponseWriter, r *http.Request) {
	var req ChunkRequest
	if !decode(w, r, http.MethodPost, &req) {
		return
	}
	placements, err := s.manager.OnChunkGenerated(req.World, req.ChunkX, req.ChunkZ)
	if err != nil {
		writeJSON(w, errorStatus(err), WorldResponse{World: req.World, Message: err.Error()})
		return
	}
	if placements == nil {
		placements = []placement.Placement{}
	}
	writeJSON(w, http.StatusOK, ChunkResponse{Placements: placements})
}

// POST /worlds/player - Update the player position used for nearby discovery
func (s *server) playerHandler(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if !decode(w, r, http.MethodPost, &req) {
		return
	}
	if _, ok := s.manager.World(req.World); !ok {
		writeJSON(w, http.StatusNotFound, WorldResponse{World: req.World, Message: weaver.ErrUnknownWorld.Error()})
		return
	}
	s.mu.Lock()
	s.players[req.World] = model.BlockPos{X: req.X, Y: req.Y, Z: req.Z}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.status(req.World))
}

// GET /worlds/network?world=<id> - Landmarks, connections and roads as GeoJSON
func (s *server) networkHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		log.Printf("❌ Method not allowed: %s\n", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("world")
	world, ok := s.manager.World(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, WorldResponse{World: id, Message: weaver.ErrUnknownWorld.Error()})
		return
	}
	fc := network.Export(world.Snapshot())
	log.Printf("📊 Returning %d features for world %q\n", len(fc.Features), id)
	writeJSON(w, http.StatusOK, fc)
}

// GET /health - Health check endpoint
func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	worlds := map[string]WorldResponse{}
	for _, id := range s.manager.Worlds() {
		worlds[id] = s.status(id)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"pool":   s.manager.PoolRunning(),
		"worlds": worlds,
	})
}
