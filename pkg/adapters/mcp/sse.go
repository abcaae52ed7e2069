package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

const sseShutdownTimeout = 5 * time.Second

// SSEHandler mounts the /sse stream and the /message endpoint of the server.
func (s *Server) SSEHandler(baseURL string) http.Handler {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	mux := http.NewServeMux()
	mux.Handle("/sse", allowCrossOrigin(sse.SSEHandler()))
	mux.Handle("/message", allowCrossOrigin(sse.MessageHandler()))
	return mux
}

// ServeSSE serves over Server-Sent Events on port until ctx ends, then drains connections.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.SSEHandler(fmt.Sprintf("http://localhost:%d", port)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sseShutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("MCP server listening (SSE)", "addr", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-stopped; err != nil {
		return fmt.Errorf("could not stop server gracefully: %w", err)
	}
	return nil
}

func allowCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
