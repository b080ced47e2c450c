package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"snakes-server/internal/board"
	"snakes-server/internal/config"
	"snakes-server/internal/room"
	"snakes-server/internal/storage"
	"snakes-server/internal/storage/memory"
)

// Server owns all game state. mu serializes every command, connection event
// and timer callback, so handlers run to completion one at a time.
type Server struct {
	cfg *config.Config
	log zerolog.Logger

	mu          sync.Mutex
	rooms       *room.Store
	connections *ConnectionManager
	sessions    *SessionManager
	persistence *PersistenceManager
	rateLimiter *RateLimiter
	dice        board.Roller
	now         func() time.Time
	closing     bool // set by Shutdown; no new grace timers after it

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*serverOptions)

type serverOptions struct {
	dice      board.Roller
	scheduler Scheduler
	store     storage.Store
}

// WithDice replaces the crypto dice, e.g. with board.FixedDice in tests.
func WithDice(d board.Roller) Option {
	return func(o *serverOptions) { o.dice = d }
}

// WithScheduler replaces the wall clock for grace timers.
func WithScheduler(s Scheduler) Option {
	return func(o *serverOptions) { o.scheduler = s }
}

// WithStorage sets the snapshot backend. Defaults to memory.
func WithStorage(s storage.Store) Option {
	return func(o *serverOptions) { o.store = s }
}

func NewServer(cfg *config.Config, log zerolog.Logger, opts ...Option) *Server {
	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dice == nil {
		o.dice = board.NewDice()
	}
	if o.store == nil {
		o.store = memory.New()
	}

	s := &Server{
		cfg:         cfg,
		log:         log,
		rooms:       room.NewStore(),
		connections: NewConnectionManager(log),
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		dice:        o.dice,
		now:         time.Now,
	}
	s.sessions = NewSessionManager(&s.mu, cfg.RejoinGrace, o.scheduler)
	s.persistence = NewPersistenceManager(o.store, log)
	return s
}

// HTTPServer serves the routes on the configured port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start restores persisted rooms and launches the background tasks.
func (s *Server) Start(ctx context.Context) error {
	if err := s.restore(ctx); err != nil {
		return err
	}

	bg, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.periodicSaveTask(bg)
	}()
	go func() {
		defer s.wg.Done()
		s.cleanupTask(bg)
	}()
	return nil
}

// Shutdown stops background work, writes a final snapshot and disconnects
// every client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	err := s.snapshot(ctx)

	s.mu.Lock()
	s.sessions.CancelAll()
	s.mu.Unlock()

	s.connections.CloseAll()
	if cerr := s.persistence.Close(); err == nil {
		err = cerr
	}
	return err
}

// periodicSaveTask snapshots rooms every SnapshotInterval.
func (s *Server) periodicSaveTask(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.snapshot(ctx); err != nil {
				s.log.Warn().Err(err).Msg("periodic snapshot failed")
			}
		}
	}
}

// cleanupTask prunes stale snapshots and idle rate limiter entries hourly.
func (s *Server) cleanupTask(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup()
			deleted, err := s.persistence.Cleanup(ctx, s.cfg.SnapshotTTL)
			if err != nil {
				s.log.Warn().Err(err).Msg("snapshot cleanup failed")
				continue
			}
			if deleted > 0 {
				s.log.Info().Int64("deleted", deleted).Msg("removed stale room snapshots")
			}
		}
	}
}

// snapshot copies every room under the lock and writes the copies outside it.
func (s *Server) snapshot(ctx context.Context) error {
	s.mu.Lock()
	all := s.rooms.All()
	copies := make([]*room.Room, 0, len(all))
	for _, r := range all {
		copies = append(copies, r.Clone())
	}
	s.mu.Unlock()

	return s.persistence.Save(ctx, copies)
}

// restore loads Active rooms back in with every seat away and a grace timer
// per seat, so players can rejoin with their clientId.
func (s *Server) restore(ctx context.Context) error {
	rooms, err := s.persistence.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rooms {
		if r.Game.Phase != room.PhaseActive || len(r.Game.Players) == 0 {
			continue
		}
		for _, p := range r.Game.Players {
			p.Disconnected = true
		}
		r.Game.CurrentTurn = ""
		s.rooms.Restore(r)
		for _, p := range r.Game.Players {
			s.sessions.Start(p.ClientID, r.ID, s.evictFunc(r.ID, p.ClientID))
		}
		s.log.Info().Str("room", r.ID).Int("players", len(r.Game.Players)).Msg("restored room")
	}
	return nil
}

// Health is the /health payload.
type Health struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Pending     int    `json:"pendingRejoins"`
	Storage     string `json:"storage"`
}

func (s *Server) Health(ctx context.Context) Health {
	s.mu.Lock()
	h := Health{
		Status:  "ok",
		Rooms:   s.rooms.Len(),
		Pending: s.sessions.Len(),
		Storage: "ok",
	}
	s.mu.Unlock()
	h.Connections = s.connections.Count()

	if err := s.persistence.Ping(ctx); err != nil {
		h.Status = "degraded"
		h.Storage = err.Error()
	}
	return h
}
