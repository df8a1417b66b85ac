package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/prepy-voice/internal/conversation"
	"github.com/ashureev/prepy-voice/internal/identity"
	"github.com/ashureev/prepy-voice/internal/journal"
	"github.com/ashureev/prepy-voice/internal/metrics"
	"github.com/ashureev/prepy-voice/internal/store"
	"github.com/ashureev/prepy-voice/internal/turn"
	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

const (
	writeTimeout  = 10 * time.Second
	touchInterval = time.Minute
	touchTimeout  = 5 * time.Second
)

// Config wires a WebSocketHandler.
type Config struct {
	Repo     store.Repository
	Chat     turn.ChatClient
	Sessions *SessionManager
	Metrics  *metrics.Metrics
	Journal  journal.Logger

	ReviewPath    string
	AllowedOrigin string
	IsDev         bool

	// EventsPerSecond and EventBurst throttle inbound frames per connection.
	EventsPerSecond float64
	EventBurst      int

	Logger *slog.Logger
}

// WebSocketHandler runs one practice loop per connection.
type WebSocketHandler struct {
	cfg    Config
	logger *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cfg Config) *WebSocketHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionManager()
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Nop{}
	}
	if cfg.EventsPerSecond <= 0 {
		cfg.EventsPerSecond = 50
	}
	if cfg.EventBurst <= 0 {
		cfg.EventBurst = 100
	}
	return &WebSocketHandler{cfg: cfg, logger: logger}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := r.URL.Query().Get("session_id")
	logger := h.logger.With("user_id", userID, "session_id", sessionID)
	logger.Info("Practice bridge request", "ip", r.RemoteAddr)

	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ps, err := h.cfg.Repo.GetPracticeSession(r.Context(), sessionID)
	if err != nil {
		logger.Error("Failed to load practice session", "error", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if ps == nil || ps.UserID != userID {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.cfg.Sessions.Register(userID, sessionID, ws)
	defer h.cfg.Sessions.Unregister(sessionID, ws)

	if h.cfg.Metrics != nil {
		h.cfg.Metrics.SessionStarted()
		defer h.cfg.Metrics.SessionDetached()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	dev := newDevice(ctx.Done())
	orch := turn.New(turn.Config{
		SessionID:  sessionID,
		UserID:     userID,
		Session:    conversation.Resume(ps.Data, ps.History),
		Device:     dev,
		UI:         dev,
		Chat:       h.cfg.Chat,
		Store:      h.cfg.Repo,
		Observer:   newSessionObserver(userID, sessionID, h.cfg.Metrics, h.cfg.Journal),
		ReviewPath: h.cfg.ReviewPath,
		Logger:     logger,
	})

	runErr := make(chan error, 1)
	go func() {
		err := orch.Run(ctx)
		dev.close()
		runErr <- err
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		write := func(ctx context.Context, f Outbound) error { return writeJSON(ctx, ws, f) }
		if h.writeLoop(ctx, cancel, write, dev, logger) {
			// The loop ended the session; closing lets the read loop return.
			_ = ws.Close(websocket.StatusNormalClosure, "session ended")
		}
	}()

	h.readLoop(ctx, ws, orch, dev, userID, logger)
	cancel()
	<-writerDone

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Practice loop stopped with error", "error", err)
	}
	logger.Info("Practice bridge closed")
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, orch *turn.Orchestrator, dev *device, userID string, logger *slog.Logger) {
	limiter := rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.EventBurst)
	var lastTouch time.Time

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				logger.Debug("WebSocket closed", "error", err)
			} else {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		var frame Inbound
		if err := json.Unmarshal(message, &frame); err != nil {
			h.dropped(logger, "malformed frame", err)
			continue
		}
		if frame.Type == TypePing {
			dev.pong()
			continue
		}
		ev, err := frame.Event()
		if err != nil {
			h.dropped(logger, "unsupported frame", err)
			continue
		}
		if !orch.Post(ev) {
			logger.Debug("Frame after practice loop exit", "type", frame.Type)
		}

		if now := time.Now(); now.Sub(lastTouch) >= touchInterval {
			lastTouch = now
			go h.touch(userID, now, logger)
		}
	}
}

// writeLoop sends outbound frames until the device is closed or ctx ends. It
// reports whether the device was closed, meaning the loop is finished. A
// failed write cancels ctx so the practice loop cannot block on a full queue.
func (h *WebSocketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, write func(context.Context, Outbound) error, dev *device, logger *slog.Logger) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case frame, ok := <-dev.out:
			if !ok {
				return true
			}
			if err := write(ctx, frame); err != nil {
				if ctx.Err() == nil {
					logger.Warn("WebSocket write error", "error", err, "type", frame.Type)
					cancel()
				}
				return false
			}
		}
	}
}

func (h *WebSocketHandler) dropped(logger *slog.Logger, msg string, err error) {
	logger.Debug(msg, "error", err)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.BridgeFrameDropped()
	}
}

func (h *WebSocketHandler) touch(userID string, now time.Time, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := h.cfg.Repo.TouchCandidate(ctx, userID, now); err != nil {
		logger.Warn("Failed to update last seen", "error", err)
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
