// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook serves the inbound-email endpoint. The mail provider POSTs
// each received email as a multipart form; the handler decodes it, runs the
// bridge synchronously and answers with the resulting status. A non-2xx
// answer makes the provider retry the delivery.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sharebridge/mailbridge/internal/bridge"
	"github.com/sharebridge/mailbridge/internal/inbound"
	"github.com/sharebridge/mailbridge/internal/metrics"
	"github.com/sharebridge/mailbridge/internal/models"
)

// Paths the inbound endpoint is mounted on. The /api prefix is kept for
// webhooks configured against the storefront server.
const (
	IncomingPath       = "/email/incoming"
	LegacyIncomingPath = "/api/email/incoming"
)

// DefaultMaxBodyBytes caps the request body, attachments included.
const DefaultMaxBodyBytes = 50 << 20

// shutdownTimeout bounds how long in-flight requests may drain on shutdown.
const shutdownTimeout = 30 * time.Second

// Processor runs the bridge for one decoded email.
type Processor interface {
	Process(ctx context.Context, email models.InboundEmail) bridge.Outcome
}

// Handler serves inbound-email webhook requests.
type Handler struct {
	processor Processor
	maxBody   int64
}

// NewHandler creates an inbound-email handler. maxBody <= 0 uses
// DefaultMaxBodyBytes.
func NewHandler(processor Processor, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{processor: processor, maxBody: maxBody}
}

// missingFieldsMessage is the error text returned when from or text is absent.
const missingFieldsMessage = "Missing required fields: from or text"

type errorResponse struct {
	Error string `json:"error"`
}

// ServeIncoming handles POST /email/incoming.
//
// The response body is empty except for the missing-fields case, which
// returns a JSON error object. Processing is detached from the request
// context so a provider timeout does not abort a half-finished update.
func (h *Handler) ServeIncoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	email, err := inbound.Decode(r, inbound.DefaultMaxMemory)
	switch {
	case errors.Is(err, inbound.ErrMissingFields):
		metrics.InboundRequests.WithLabelValues("400", "decode").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: missingFieldsMessage})
		return
	case err != nil:
		slog.Warn("failed to decode inbound email", "error", err)
		metrics.InboundRequests.WithLabelValues("400", "decode").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out := h.processor.Process(context.WithoutCancel(r.Context()), email)

	slog.Info("inbound email handled",
		"status", out.Status,
		"stage", out.Stage,
		"transaction_id", out.TransactionID,
		"message_id", out.MessageID,
	)
	w.WriteHeader(out.Status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response body", "error", err)
	}
}

// Routes mounts the inbound endpoint on mux.
func Routes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc(IncomingPath, handler.ServeIncoming)
	mux.HandleFunc(LegacyIncomingPath, handler.ServeIncoming)
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the ready channel
// before starting to accept connections. When ctx is cancelled the server
// stops accepting requests and drains in-flight ones; done is closed once
// that has finished.
func Serve(ctx context.Context, port int, handler *Handler) (ready, done <-chan struct{}, err error) {
	mux := http.NewServeMux()
	Routes(mux, handler)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	readyCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("webhook server shutdown incomplete", "error", err)
			server.Close()
		}
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(readyCh)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return readyCh, doneCh, nil
}
