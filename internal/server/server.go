package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"buildmatic/internal/chat"
	"buildmatic/internal/event"
	"buildmatic/internal/skills"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Conversation runs prompts against one conversation's state.
type Conversation interface {
	RunPrompt(ctx context.Context, history []chat.Message, prompt string, sink event.Sink) ([]chat.Message, error)
}

// Runner is the surface the API drives. Conversation is called once per
// HTTP chat request and once per websocket connection, so clients never
// share a todo list.
type Runner interface {
	Conversation() Conversation
	Model() string
	Skills() *skills.Loader
}

type Config struct {
	JWTSecret string
	Logger    *zap.Logger
}

// Server exposes a Runner over HTTP: SSE, a synchronous JSON call and a
// websocket stream.
type Server struct {
	runner   Runner
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
}

type chatRequest struct {
	Message string         `json:"message"`
	History []chat.Message `json:"history,omitempty"`
}

type syncResponse struct {
	Response string         `json:"response"`
	History  []chat.Message `json:"history"`
}

type statusResponse struct {
	Status string   `json:"status"`
	Model  string   `json:"model"`
	Skills []string `json:"skills"`
}

func New(runner Runner, cfg Config) *Server {
	s := &Server{
		runner: runner,
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/sync", s.handleChatSync)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)

	s.handler = s.logRequests(authMiddleware(cfg.JWTSecret, mux))
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("api server listening",
			zap.String("addr", ln.Addr().String()),
			zap.Bool("auth", s.cfg.JWTSecret != ""),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("api server stopped")
		return nil
	})
	return g.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var names []string
	if l := s.runner.Skills(); l != nil {
		names = l.Names()
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Model: s.runner.Model(), Skills: names})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	sse := newSSEWriter(w)
	if sse == nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sink := event.SinkFunc(func(e event.Event) {
		if err := sse.send(string(e.Kind), e.Payload()); err != nil {
			s.logger.Debug("sse write failed", zap.Error(err))
		}
	})
	if _, err := s.runner.Conversation().RunPrompt(r.Context(), req.History, req.Message, sink); err != nil {
		s.logger.Warn("chat run failed", zap.Error(err))
	}
}

func (s *Server) handleChatSync(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	var collector event.Collector
	history, err := s.runner.Conversation().RunPrompt(r.Context(), req.History, req.Message, &collector)
	if err != nil {
		s.logger.Warn("chat run failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Response: collector.Text(), History: history})
}

// handleChatWS serves a conversation over one websocket. Each inbound
// frame is a chat request; every event goes back as a {type,data} frame.
// The connection keeps its own history when the client sends none, and
// its own conversation state for its whole lifetime.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conv := s.runner.Conversation()
	var history []chat.Message
	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			if err := conn.WriteJSON(event.Error("message is required")); err != nil {
				return
			}
			continue
		}
		if req.History != nil {
			history = req.History
		}

		var writeErr error
		sink := event.SinkFunc(func(e event.Event) {
			if writeErr == nil {
				writeErr = conn.WriteJSON(e)
			}
		})
		history, err = conv.RunPrompt(r.Context(), history, req.Message, sink)
		if err != nil {
			s.logger.Warn("chat run failed", zap.Error(err))
		}
		if writeErr != nil {
			s.logger.Debug("websocket write", zap.Error(writeErr))
			return
		}
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
