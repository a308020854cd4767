package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
	autonotifiers "github.com/protocell/autopoiesim/internal/autopoiesis/notifiers"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
	}
}

// handleWorldRoutes routes /world and /world/... requests.
func (s *Server) handleWorldRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/world")

	switch {
	case rest == "" && r.Method == http.MethodPost:
		s.handleCreateWorld(w, r)
	case rest == "" && r.Method == http.MethodDelete:
		s.handleDeleteWorld(w, r)
	case rest == "/step" && r.Method == http.MethodPost:
		s.handleStep(w, r)
	case rest == "/stats" && r.Method == http.MethodGet:
		s.handleStats(w, r)
	case rest == "/particles" && r.Method == http.MethodGet:
		s.handleListParticles(w, r)
	case rest == "/bonds" && r.Method == http.MethodGet:
		s.handleListBonds(w, r)
	case rest == "/snapshot" && r.Method == http.MethodPost:
		s.handleSaveSnapshot(w, r)
	case rest == "/snapshot" && r.Method == http.MethodGet:
		s.handleGetSnapshot(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// POST /world
// Body: worldSpec JSON (all sections optional, defaults applied).
// Creates the world, replacing an existing one.
func (s *Server) handleCreateWorld(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	spec := defaultWorldSpec()
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "invalid world json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := spec.Medium.Validate(); err != nil {
		http.Error(w, "invalid medium config: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	sim, err := s.createWorld(spec)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, "cannot create world: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Infof("World created: particles=%d seed=%d", sim.World.Counts().Particles(), spec.Chemistry.RNGSeed)
	writeJSON(w, map[string]any{
		"status": "created",
		"counts": sim.World.Counts(),
	})
}

// DELETE /world
func (s *Server) handleDeleteWorld(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.manager.Delete(worldSimID)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Infof("World deleted")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("world deleted"))
}

// POST /world/step?n=10
// Advances the world by n ticks (default 1) and returns the last tick's stats.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	n := 1
	if nStr := r.URL.Query().Get("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid n: must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	s.mu.Lock()
	sim, exists := s.world()
	if !exists {
		s.mu.Unlock()
		http.Error(w, "no world created", http.StatusNotFound)
		return
	}
	stats, err := s.step(sim, n)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, autopoiesis.ErrStopped) {
			http.Error(w, "world is stopped", http.StatusConflict)
			return
		}
		http.Error(w, "step failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Debugf("World stepped: n=%d tick=%d", n, stats.Tick)
	writeJSON(w, stats)
}

// GET /world/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	sim, exists := s.world()
	if !exists {
		s.mu.RUnlock()
		http.Error(w, "no world created", http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"state":     sim.Stepper.State().String(),
		"tick":      sim.Stepper.Tick(),
		"counts":    sim.World.Counts(),
		"last_tick": s.lastStats,
	}
	s.mu.RUnlock()

	writeJSON(w, resp)
}

// GET /world/particles
func (s *Server) handleListParticles(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	sim, exists := s.world()
	if !exists {
		s.mu.RUnlock()
		http.Error(w, "no world created", http.StatusNotFound)
		return
	}
	reg := sim.World.Registry()
	particles := make([]autopoiesis.Particle, 0, reg.Len())
	for _, h := range reg.Handles() {
		p, err := reg.Get(h)
		if err != nil {
			continue
		}
		particles = append(particles, p)
	}
	s.mu.RUnlock()

	writeJSON(w, particles)
}

// GET /world/bonds
func (s *Server) handleListBonds(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	sim, exists := s.world()
	if !exists {
		s.mu.RUnlock()
		http.Error(w, "no world created", http.StatusNotFound)
		return
	}
	ledger := sim.World.Ledger()
	bonds := make([]autopoiesis.Bond, 0, ledger.Len())
	for _, id := range ledger.IDs() {
		b, err := ledger.Get(id)
		if err != nil {
			continue
		}
		bonds = append(bonds, b)
	}
	s.mu.RUnlock()

	writeJSON(w, bonds)
}

// POST /world/snapshot
// Persists a snapshot of the current world state.
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	sim, exists := s.world()
	if !exists {
		s.mu.RUnlock()
		http.Error(w, "no world created", http.StatusNotFound)
		return
	}
	snap := sim.World.Snapshot(sim.Stepper.Tick())
	s.mu.RUnlock()

	if err := s.snapshots.Save(string(worldSimID), snap); err != nil {
		s.logger.Errorf("Failed to save snapshot: tick=%d error=%v", snap.Tick, err)
		http.Error(w, "failed to save snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Debugf("Snapshot saved: tick=%d", snap.Tick)
	writeJSON(w, map[string]any{
		"status": "ok",
		"tick":   snap.Tick,
	})
}

// GET /world/snapshot[?tick=N]
// Returns the persisted snapshot at the given tick, or the latest one.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap autopoiesis.Snapshot
	if tickStr := r.URL.Query().Get("tick"); tickStr != "" {
		tick, err := strconv.ParseInt(tickStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid tick: must be an integer", http.StatusBadRequest)
			return
		}
		snap, err = s.snapshots.Load(string(worldSimID), tick)
		if err != nil {
			if errors.Is(err, autopoiesis.ErrNotFound) {
				http.Error(w, "snapshot not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load snapshot: "+err.Error(), http.StatusInternalServerError)
			return
		}
	} else {
		var ok bool
		var err error
		snap, ok, err = s.snapshots.LoadLatest(string(worldSimID))
		if err != nil {
			http.Error(w, "failed to load snapshot: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "snapshot not found", http.StatusNotFound)
			return
		}
	}
	writeJSON(w, snap)
}

// GET /live
// Upgrades to a websocket subscribed to the per-tick event feed.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	upgrader := s.live.Upgrader()
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	s.live.RegisterClient(conn)
	s.logger.Debugf("Live client connected: remote=%s", r.RemoteAddr)
}

// handleNotifiersRoutes handles notifier management endpoints.
func (s *Server) handleNotifiersRoutes(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/notifiers" && r.Method == http.MethodGet:
		s.handleListNotifiers(w, r)
	case r.URL.Path == "/notifiers" && r.Method == http.MethodPost:
		s.handleRegisterNotifier(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifiers/") && r.Method == http.MethodDelete:
		s.handleUnregisterNotifier(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	ids := s.notifyMgr.List()
	out := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		n, exists := s.notifyMgr.Get(id)
		if exists {
			out = append(out, map[string]string{
				"id":   id,
				"type": n.Type(),
			})
		}
	}
	writeJSON(w, map[string]any{"notifiers": out})
}

// POST /notifiers
// Body: { "type": "webhook", "id": "my-webhook", "config": { "url": "http://..." } }
type registerNotifierRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerNotifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	var notifier autopoiesis.Notifier
	switch req.Type {
	case "webhook":
		url, ok := req.Config["url"].(string)
		if !ok || url == "" {
			http.Error(w, "webhook URL is required", http.StatusBadRequest)
			return
		}
		wh := autonotifiers.NewWebhookNotifier(req.ID, url)
		if headers, ok := req.Config["headers"].(map[string]any); ok {
			for k, v := range headers {
				if vStr, ok := v.(string); ok {
					wh.SetHeader(k, vStr)
				}
			}
		}
		notifier = wh
	default:
		http.Error(w, "unknown notifier type: "+req.Type, http.StatusBadRequest)
		return
	}

	if err := s.notifyMgr.Register(notifier); err != nil {
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusBadRequest)
		return
	}

	// New notifiers also receive the tick feed.
	s.mu.Lock()
	if sim, exists := s.world(); exists {
		sim.Stepper.SetNotifications(s.notifyMgr, s.notifyMgr.List(), string(worldSimID))
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier registered"))
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	notifierID := strings.TrimPrefix(r.URL.Path, "/notifiers/")
	if notifierID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}
	if notifierID == liveNotifierID {
		http.Error(w, "the live feed notifier cannot be removed", http.StatusBadRequest)
		return
	}

	if err := s.notifyMgr.Unregister(notifierID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.mu.Lock()
	if sim, exists := s.world(); exists {
		sim.Stepper.SetNotifications(s.notifyMgr, s.notifyMgr.List(), string(worldSimID))
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier unregistered"))
}
