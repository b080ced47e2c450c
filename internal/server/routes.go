package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"snakes-server/internal/gameerr"
	"snakes-server/internal/protocol"
)

const (
	writeTimeout      = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	maxMessageBytes   = 4096
)

// RegisterRoutes mounts /health, /rooms and /websocket.
func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(hlog.NewHandler(s.log))
		r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", d).
				Msg("request")
		}))
		r.Get("/health", s.healthHandler)
		r.Get("/rooms", s.roomsHandler)
	})

	// The websocket route stays outside the access logger so the
	// ResponseWriter is never wrapped before the upgrade.
	r.Get("/websocket", s.websocketHandler)

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	h := s.Health(r.Context())
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

func (s *Server) roomsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	infos := s.rooms.RoomsInfo()
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}

// websocketHandler runs one connection. The handler goroutine only reads;
// every write goes through the client's queue to writeLoop. A client whose
// queue fills is closed by ConnectionManager, which ends writeLoop and then
// this read loop through the shared ctx.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer socket.CloseNow()
	socket.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connectionID := uuid.NewString()
	log := s.log.With().Str("conn", connectionID).Logger()
	log.Debug().Msg("connection opened")

	client := s.connections.Register(connectionID)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writeLoop(ctx, socket, client)
	}()

	defer func() {
		s.HandleDisconnect(connectionID)
		cancel()
		<-writerDone
		s.connections.Unregister(connectionID)
		s.rateLimiter.RemoveConnection(connectionID)
		log.Debug().Msg("connection closed")
	}()

	s.Connect(connectionID)

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Msg("read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			log.Debug().Msg("ignoring non-text frame")
			continue
		}

		// Every frame counts against the limit, malformed ones included.
		if !s.rateLimiter.Allow(connectionID) {
			s.connections.Send(connectionID, protocol.Error(gameerr.ErrRateLimited))
			continue
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.connections.Send(connectionID, protocol.Error(gameerr.InvalidData("JSON")))
			continue
		}

		log.Debug().Str("type", msg.Type).Msg("message received")
		s.Dispatch(connectionID, msg)
	}
}

// writeLoop is the only writer on socket. It drains the client's queue in
// order, pings on an interval and closes the socket when the client is
// dropped.
func (s *Server) writeLoop(ctx context.Context, socket *websocket.Conn, client *Client) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			// Flush whatever was queued before the close signal.
			s.drain(ctx, socket, client)
			socket.Close(websocket.StatusGoingAway, "connection closed by server")
			return
		case data := <-client.Outbound():
			if err := s.write(ctx, socket, data); err != nil {
				return
			}
		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := socket.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Str("conn", client.ID).Msg("heartbeat failed")
				return
			}
		}
	}
}

// drain flushes what is already queued, for at most a second.
func (s *Server) drain(ctx context.Context, socket *websocket.Conn, client *Client) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	for {
		select {
		case data := <-client.Outbound():
			if err := s.write(ctx, socket, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) write(ctx context.Context, socket *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return socket.Write(writeCtx, websocket.MessageText, data)
}
