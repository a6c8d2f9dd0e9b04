package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maloquacious/shameless/internal/logger"
	"github.com/maloquacious/shameless/internal/shameless"
)

// runServe starts the admin (JSON) server on loopback with graceful shutdown.
func runServe(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, logger.ParseLevel(logLevel))

	// Bind admin to 127.0.0.1 only (loopback enforcement)
	adminListener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", adminPort))
	if err != nil {
		return fmt.Errorf("admin listener bind failed (loopback only): %w", err)
	}
	adminSrv := &http.Server{
		Handler:           adminMux(st),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin server listening on 127.0.0.1:%d (JSON-only)", adminPort)
		if err := adminSrv.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	if exitAfter > 0 {
		log.Info("exit-after timer set: %s", exitAfter)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exitAfter)
		defer cancel()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error("%v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTO)
	defer cancel()
	_ = adminSrv.Shutdown(shutdownCtx)
	if err := st.Disconnect(); err != nil {
		log.Warn("disconnect: %v", err)
	}
	log.Info("shutdown complete")
	return serveErr
}

type partitionStatus struct {
	Index     int      `json:"index"`
	URL       string   `json:"url"`
	Connected bool     `json:"connected"`
	Tables    []string `json:"tables"`
}

type routeResponse struct {
	Model     string `json:"model"`
	Index     string `json:"index"`
	Shard     int    `json:"shard"`
	Padded    string `json:"padded_shard"`
	Partition int    `json:"partition"`
	Table     string `json:"table"`
}

// adminMux serves read-only views of the store topology.
func adminMux(st *shameless.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/admin/status", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := st.Config()
		var models []string
		for _, m := range st.Models() {
			models = append(models, m.Name())
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":    version.String(),
			"buildDate":  buildDate,
			"time":       time.Now().UTC().Format(time.RFC3339),
			"name":       st.Name(),
			"partitions": cfg.PartitionsCount(),
			"shards":     cfg.ShardsCount,
			"models":     models,
		})
	})))

	mux.Handle("/admin/partitions", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp []partitionStatus
		_ = st.EachPartition(func(p *shameless.Partition, tables []string) error {
			resp = append(resp, partitionStatus{
				Index:     p.Index(),
				URL:       redact(p.URL()),
				Connected: p.Connected(),
				Tables:    tables,
			})
			return nil
		})
		_ = json.NewEncoder(w).Encode(resp)
	})))

	mux.Handle("/admin/route", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		model, key := q.Get("model"), q.Get("key")
		if model == "" || key == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "model and key are required")
			return
		}
		index := q.Get("index")
		if index == "" {
			index = shameless.PrimaryIndex
		}
		rt, err := route(st, model, index, key)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "not_routable", err.Error())
			return
		}
		_ = json.NewEncoder(w).Encode(routeResponse{
			Model:     model,
			Index:     rt.Index,
			Shard:     rt.Shard,
			Padded:    st.PaddedShard(rt.Shard),
			Partition: rt.Partition,
			Table:     rt.Table,
		})
	})))

	return mux
}

// jsonOnly enforces the JSON-only contract for admin routes.
func jsonOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if !strings.Contains(accept, "application/json") && accept != "" {
			writeJSONError(w, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "admin routes are read-only")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}
