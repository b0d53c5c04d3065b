package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// shutdownTimeout bounds how long HTTP servers get to drain on stop.
const shutdownTimeout = 5 * time.Second

type httpServers struct {
	mu      sync.Mutex
	muxes   map[int]*http.ServeMux
	running []*http.Server
}

func newHTTPServers() *httpServers {
	return &httpServers{muxes: make(map[int]*http.ServeMux)}
}

// RegisterHTTPHandler mounts handler on pattern for the server listening on
// port. Servers start with App.Run.
func (b *Broker) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	b.httpServers.mu.Lock()
	defer b.httpServers.mu.Unlock()

	mux, ok := b.httpServers.muxes[port]
	if !ok {
		mux = http.NewServeMux()
		b.httpServers.muxes[port] = mux
	}
	mux.Handle(pattern, handler)
}

// RegisterDocsHandlers mounts the specification and health endpoints on
// DocsPort. It does nothing when DocsPort is zero.
func (b *Broker) RegisterDocsHandlers() {
	if b.Conf.DocsPort <= 0 {
		return
	}
	b.RegisterHTTPHandler(b.Conf.DocsPort, "/asyncapi.json", http.HandlerFunc(b.handleSchemaJSON))
	b.RegisterHTTPHandler(b.Conf.DocsPort, "/asyncapi.yaml", http.HandlerFunc(b.handleSchemaYAML))
	b.RegisterHTTPHandler(b.Conf.DocsPort, "/health", http.HandlerFunc(b.handleHealth))
}

// Handler returns the mux registered for port, or nil.
func (b *Broker) Handler(port int) http.Handler {
	b.httpServers.mu.Lock()
	defer b.httpServers.mu.Unlock()
	mux, ok := b.httpServers.muxes[port]
	if !ok {
		return nil
	}
	return mux
}

func (b *Broker) handleSchemaJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := b.Schema()
	if err != nil {
		b.Logger.Error("Failed to build schema", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	body, err := doc.ToJSONIndent()
	if err != nil {
		b.Logger.Error("Failed to encode schema", err, loggingpkg.LogFields{"format": "json"})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (b *Broker) handleSchemaYAML(w http.ResponseWriter, r *http.Request) {
	doc, err := b.Schema()
	if err != nil {
		b.Logger.Error("Failed to build schema", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	body, err := doc.ToYAML()
	if err != nil {
		b.Logger.Error("Failed to encode schema", err, loggingpkg.LogFields{"format": "yaml"})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(body)
}

func (b *Broker) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !b.Connected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (b *Broker) startHTTPServers() {
	b.httpServers.mu.Lock()
	defer b.httpServers.mu.Unlock()

	for port, mux := range b.httpServers.muxes {
		addr := fmt.Sprintf(":%d", port)
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		b.httpServers.running = append(b.httpServers.running, server)

		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}(server)
	}
}

func (b *Broker) stopHTTPServers() {
	b.httpServers.mu.Lock()
	running := b.httpServers.running
	b.httpServers.running = nil
	b.httpServers.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, server := range running {
		if err := server.Shutdown(ctx); err != nil {
			b.Logger.Error("Failed to stop HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
		}
	}
}
