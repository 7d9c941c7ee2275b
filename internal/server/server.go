// Package server exposes the bill board over HTTP: the active view as
// JSON, a live SSE stream, the lifecycle operations, and the ingest
// endpoint for the upstream POS feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firefroast/billboard/internal/lifecycle"
	"github.com/firefroast/billboard/internal/models"
	"github.com/firefroast/billboard/internal/printing"
	"github.com/firefroast/billboard/internal/reconcile"
	"github.com/firefroast/billboard/internal/store"
)

const maxIngestBody = 1 << 20 // 1 MiB per bill document

// Server wires the reconciler and lifecycle controller into HTTP
// handlers.
type Server struct {
	bills    *reconcile.Reconciler
	life     *lifecycle.Controller
	ingestor store.Ingestor
}

// New creates the server. ingestor may be nil; the ingest endpoint then
// responds 404.
func New(bills *reconcile.Reconciler, life *lifecycle.Controller, ingestor store.Ingestor) *Server {
	return &Server{bills: bills, life: life, ingestor: ingestor}
}

// Handler builds the full route table wrapped in logging and CORS
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/bills", s.handleListBills)
	mux.HandleFunc("GET /api/bills/stream", s.handleStreamBills)
	mux.HandleFunc("POST /api/bills", s.handleIngestBill)
	mux.HandleFunc("POST /api/bills/{id}/done", s.handleRetireBill)
	mux.HandleFunc("POST /api/bills/{id}/print", s.handlePrintBill)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(corsMiddleware(mux))
}

// billJSON is the wire shape of a bill. Money renders as fixed
// two-decimal strings so clients never see raw store values.
type billJSON struct {
	ID          string         `json:"id"`
	TableNumber string         `json:"tableNumber"`
	Items       []lineItemJSON `json:"items"`
	Subtotal    string         `json:"subtotal"`
	GSTAmount   string         `json:"gstAmount"`
	GrandTotal  string         `json:"grandTotal"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	Status      string         `json:"status"`
}

type lineItemJSON struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Quantity           int64  `json:"quantity"`
	Price              string `json:"price"`
	Total              string `json:"total"`
	CustomizationNotes string `json:"customizationNotes,omitempty"`
}

func toBillJSON(b models.Bill) billJSON {
	items := make([]lineItemJSON, len(b.Items))
	for i, item := range b.Items {
		items[i] = lineItemJSON{
			ID:                 item.ID,
			Name:               item.Name,
			Quantity:           item.Quantity,
			Price:              item.Price.StringFixed(2),
			Total:              item.Total().StringFixed(2),
			CustomizationNotes: item.CustomizationNotes,
		}
	}
	return billJSON{
		ID:          b.ID,
		TableNumber: b.TableNumber,
		Items:       items,
		Subtotal:    b.Subtotal.StringFixed(2),
		GSTAmount:   b.GSTAmount.StringFixed(2),
		GrandTotal:  b.GrandTotal.StringFixed(2),
		Timestamp:   b.Timestamp,
		Status:      string(b.Status),
	}
}

func toViewJSON(bills []models.Bill) []billJSON {
	out := make([]billJSON, len(bills))
	for i, b := range bills {
		out[i] = toBillJSON(b)
	}
	return out
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bills": toViewJSON(s.bills.ActiveBills()),
	})
}

// handleStreamBills pushes the active view over SSE: once on connect,
// then after every reconciliation publish.
func (s *Server) handleStreamBills(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := s.bills.Watch(r.Context())

	if err := writeSSE(w, toViewJSON(s.bills.ActiveBills())); err != nil {
		return
	}
	flusher.Flush()

	for view := range updates {
		if err := writeSSE(w, toViewJSON(view)); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, view []billJSON) error {
	payload, err := json.Marshal(map[string]any{"bills": view})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: bills\ndata: %s\n\n", payload)
	return err
}

// handleIngestBill accepts a raw bill document from the upstream POS.
// The payload is stored verbatim; normalization happens downstream.
func (s *Server) handleIngestBill(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		http.Error(w, "ingest not available", http.StatusNotFound)
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "body must be a JSON object"})
		return
	}

	id, err := s.ingestor.Ingest(r.Context(), store.BillsCollection, fields)
	if err != nil {
		slog.Error("Ingest failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to store bill"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleRetireBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.life.Retire(r.Context(), id); err != nil {
		var transition *lifecycle.TransitionError
		if errors.As(err, &transition) {
			slog.Error("Retire failed", "bill_id", id, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "bill store rejected the update"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "retire failed"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrintBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	bill, ok := s.bills.Bill(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "bill not in active view"})
		return
	}

	// The workflow outlives the request; detach it from the request
	// context so a closed connection cannot abort an in-flight print.
	job, err := s.life.RequestPrint(context.WithoutCancel(r.Context()), bill)
	if err != nil {
		if errors.Is(err, printing.ErrBusy) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "a print is already in progress"})
			return
		}
		slog.Error("Print request failed", "bill_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "print failed to start"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
