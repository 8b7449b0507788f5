package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/23skdu/longbow-bowyer/internal/encoder"
	"github.com/23skdu/longbow-bowyer/internal/encoding"
)

var (
	vectorsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_vectors_served_total",
		Help: "The total number of pooled vectors served",
	})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bowyer_request_duration_seconds",
		Help:    "Time spent processing encode requests",
		Buckets: prometheus.DefBuckets,
	})
)

var tracer = otel.Tracer("bowyer-server")

type encodeRequest struct {
	IDs        [][]int `json:"ids" cbor:"ids"`
	Mask       [][]int `json:"mask,omitempty" cbor:"mask,omitempty"`
	SegmentIDs [][]int `json:"segment_ids,omitempty" cbor:"segment_ids,omitempty"`
}

type encodeResponse struct {
	Vectors [][]float32 `json:"vectors" cbor:"vectors"`
	Hidden  int         `json:"hidden" cbor:"hidden"`
}

type Server struct {
	svc *encoding.Service
}

func NewServer(svc *encoding.Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/encode", s.handleEncode)
	mux.HandleFunc("/encode/json", s.handleEncodeJSON)
	mux.HandleFunc("/health", s.handleHealth)
}

func startServer(addr string, svc *encoding.Service) {
	srv := NewServer(svc)
	mux := http.NewServeMux()
	srv.routes(mux)

	log.Info().Str("addr", addr).Msg("Starting Bowyer Server")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// handleEncode serves pooled vectors over CBOR.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleEncode")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req encodeRequest
	if err := cbor.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}

	if len(req.IDs) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	span.SetAttributes(attribute.Int("sequence_count", len(req.IDs)))

	vecs, err := s.svc.EncodePooled(ctx, encoder.InputBatch{
		IDs:        req.IDs,
		Mask:       req.Mask,
		SegmentIDs: req.SegmentIDs,
	})
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("Encode failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vectorsServed.Add(float64(len(vecs)))

	w.Header().Set("Content-Type", "application/cbor")
	if err := cbor.NewEncoder(w).Encode(encodeResponse{Vectors: vecs, Hidden: s.svc.Hidden()}); err != nil {
		log.Error().Err(err).Msg("Failed to write CBOR response")
	}
}

// handleEncodeJSON is the JSON twin of handleEncode, for callers without a
// CBOR stack.
func (s *Server) handleEncodeJSON(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleEncodeJSON")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req encodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (JSON decode): %v", err), http.StatusBadRequest)
		return
	}

	if len(req.IDs) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	vecs, err := s.svc.EncodePooled(ctx, encoder.InputBatch{
		IDs:        req.IDs,
		Mask:       req.Mask,
		SegmentIDs: req.SegmentIDs,
	})
	if err != nil {
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vectorsServed.Add(float64(len(vecs)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(encodeResponse{Vectors: vecs, Hidden: s.svc.Hidden()}); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
