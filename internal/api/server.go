// Package api exposes the manual trigger and health endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/egemenkeskn/trader-server/internal/dispatcher"

	"go.uber.org/zap"
)

// Triggerer enqueues a sweep without waiting for it.
type Triggerer interface {
	Trigger(accountID string, force bool) error
}

// TriggerRequest is the body of POST /api/trigger. Both fields are optional.
type TriggerRequest struct {
	AccountID string `json:"accountId,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

type triggerResponse struct {
	Status    string `json:"status"`
	AccountID string `json:"accountId,omitempty"`
	Force     bool   `json:"force"`
}

// NewMux registers the trigger and health routes.
func NewMux(trigger Triggerer, started time.Time, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/trigger", func(w http.ResponseWriter, r *http.Request) {
		var req TriggerRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		if err := trigger.Trigger(req.AccountID, req.Force); err != nil {
			if !errors.Is(err, dispatcher.ErrQueueFull) {
				logger.Error("手动触发失败", zap.Error(err))
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}

		logger.Info("手动触发已受理", zap.String("account", req.AccountID), zap.Bool("force", req.Force))
		writeJSON(w, http.StatusAccepted, triggerResponse{Status: "accepted", AccountID: req.AccountID, Force: req.Force})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"uptimeSec": int64(time.Since(started).Seconds()),
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the HTTP listener of the trigger surface.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()
	s.logger.Info("HTTP服务已启动", zap.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
