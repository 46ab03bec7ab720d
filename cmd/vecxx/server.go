package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-vecxx/internal/cache"
	"github.com/23skdu/longbow-vecxx/internal/client"
	"github.com/23skdu/longbow-vecxx/internal/vectorizer"
)

var (
	sentencesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vecxx_sentences_processed_total",
		Help: "The total number of sentences vectorized",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vecxx_request_duration_seconds",
		Help:    "Time spent processing vectorize requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vecxx_cache_hits_total",
		Help: "Sentences answered from the id cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vecxx_cache_misses_total",
		Help: "Sentences that had to be vectorized",
	})
)

const arrowStreamType = "application/vnd.apache.arrow.stream"

type piecesRequest struct {
	Sentences [][]string `cbor:"sentences"`
}

type piecesResponse struct {
	Pieces [][]string `cbor:"pieces"`
}

type idsRequest struct {
	Sentences [][]string `cbor:"sentences"`
	MaxLength *int       `cbor:"max_length,omitempty"`
}

type recordsRequest struct {
	Records   [][]vectorizer.Record `cbor:"records"`
	MaxLength *int                  `cbor:"max_length,omitempty"`
}

type idsResponse struct {
	IDs   [][]int `cbor:"ids"`
	Sizes []int   `cbor:"sizes"`
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// MaxLength applies when a request does not carry its own.
	MaxLength     int
	MaxConcurrent int
	// Cache is optional.
	Cache cache.IDCache
}

type Server struct {
	vec           *vectorizer.Vectorizer
	mapVec        *vectorizer.MapVectorizer
	maxLength     int
	maxConcurrent int64
	cache         cache.IDCache
	alloc         memory.Allocator
	sem           *semaphore.Weighted
}

func NewServer(vec *vectorizer.Vectorizer, mapVec *vectorizer.MapVectorizer, opts ServerOptions) *Server {
	maxConcurrent := int64(max(opts.MaxConcurrent, 1))
	return &Server{
		vec:           vec,
		mapVec:        mapVec,
		maxLength:     opts.MaxLength,
		maxConcurrent: maxConcurrent,
		cache:         opts.Cache,
		alloc:         memory.NewGoAllocator(),
		sem:           semaphore.NewWeighted(maxConcurrent),
	}
}

// Handler routes every HTTP endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/pieces", s.handlePieces)
	mux.HandleFunc("/ids", s.handleIDs)
	mux.HandleFunc("/ids/records", s.handleRecords)
	mux.HandleFunc("/ids/arrow", s.handleIDsArrow)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(ctx context.Context, addr string, srv *Server) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Starting vecxx HTTP server")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var tracer = otel.Tracer("vecxx-server")

func (s *Server) handlePieces(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "handlePieces")
	defer span.End()
	defer observe("pieces", time.Now())

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req piecesRequest
	if err := cbor.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("sequence_count", len(req.Sentences)))

	resp := piecesResponse{Pieces: make([][]string, len(req.Sentences))}
	for i, sentence := range req.Sentences {
		resp.Pieces[i] = s.vec.ConvertToPieces(sentence)
	}
	writeCBOR(w, resp)
}

func (s *Server) handleIDs(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleIDs")
	defer span.End()
	defer observe("ids", time.Now())

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req idsRequest
	if err := cbor.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("sequence_count", len(req.Sentences)))

	s.respondIDs(ctx, w, req.Sentences, s.resolveMaxLength(req.MaxLength))
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleRecords")
	defer span.End()
	defer observe("records", time.Now())

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req recordsRequest
	if err := cbor.NewDecoder(r.Body).Decode(&req); err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("sequence_count", len(req.Records)))

	sentences := make([][]string, len(req.Records))
	for i, records := range req.Records {
		sentences[i] = s.mapVec.Tokens(records)
	}
	s.respondIDs(ctx, w, sentences, s.resolveMaxLength(req.MaxLength))
}

func (s *Server) respondIDs(ctx context.Context, w http.ResponseWriter, sentences [][]string, maxLength int) {
	ids, sizes, err := s.vectorize(ctx, sentences, maxLength)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCBOR(w, idsResponse{IDs: ids, Sizes: sizes})
}

func (s *Server) handleIDsArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleIDsArrow")
	defer span.End()
	defer observe("arrow", time.Now())

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reader, err := ipc.NewReader(r.Body, ipc.WithAllocator(s.alloc))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create IPC reader: %v", err), http.StatusBadRequest)
		return
	}
	defer reader.Release()

	maxLength := s.maxLength
	if v := r.URL.Query().Get("max_length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("Bad max_length %q", v), http.StatusBadRequest)
			return
		}
		maxLength = n
	}

	var out []arrow.RecordBatch
	defer func() {
		for _, rec := range out {
			rec.Release()
		}
	}()

	total := 0
	for reader.Next() {
		texts, err := client.ReadTexts(reader.Record())
		if err != nil {
			log.Warn().Err(err).Msg("Arrow batch without text column")
			http.Error(w, fmt.Sprintf("Bad batch: %v", err), http.StatusBadRequest)
			return
		}
		rec, err := s.vectorizeBatch(ctx, texts, maxLength)
		if err != nil {
			writeError(w, err)
			return
		}
		if rec != nil {
			out = append(out, rec)
		}
		total += len(texts)
	}
	if err := reader.Err(); err != nil {
		log.Error().Err(err).Msg("Error reading Arrow stream")
		http.Error(w, "Stream error", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("sequence_count", total))

	w.Header().Set("Content-Type", arrowStreamType)
	writer := ipc.NewWriter(w, ipc.WithSchema(client.IDSchema), ipc.WithAllocator(s.alloc))
	for _, rec := range out {
		if err := writer.Write(rec); err != nil {
			log.Error().Err(err).Msg("Failed to write Arrow response")
			break
		}
	}
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Arrow response")
	}
}

// vectorizeBatch converts whitespace-separated sentences into an IDSchema
// batch. Empty input yields a nil batch.
func (s *Server) vectorizeBatch(ctx context.Context, texts []string, maxLength int) (arrow.RecordBatch, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	sentences := make([][]string, len(texts))
	for i, text := range texts {
		sentences[i] = strings.Fields(text)
	}
	ids, sizes, err := s.vectorize(ctx, sentences, maxLength)
	if err != nil {
		return nil, err
	}
	return client.NewRecordBatchBuilder(s.alloc).BuildIDBatch(texts, ids, sizes)
}

// vectorize converts sentences in parallel under admission control.
func (s *Server) vectorize(ctx context.Context, sentences [][]string, maxLength int) ([][]int, []int, error) {
	if maxLength < 0 {
		return nil, nil, fmt.Errorf("%w: %d", vectorizer.ErrInvalidMaxLength, maxLength)
	}
	if len(sentences) == 0 {
		return [][]int{}, []int{}, nil
	}

	weight := min(int64(len(sentences)), s.maxConcurrent)
	if err := s.sem.Acquire(ctx, weight); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		return nil, nil, errBusy
	}
	defer s.sem.Release(weight)

	ids := make([][]int, len(sentences))
	sizes := make([]int, len(sentences))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, sentence := range sentences {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row, err := s.convert(sentence, maxLength)
			if err != nil {
				return err
			}
			ids[i] = row.IDs
			sizes[i] = row.Size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sentencesProcessed.Add(float64(len(sentences)))
	return ids, sizes, nil
}

func (s *Server) convert(sentence []string, maxLength int) (vectorizer.TokenIDs, error) {
	if s.cache == nil {
		return s.vec.ConvertToIDs(sentence, maxLength)
	}
	key := cacheKey(sentence, maxLength)
	if ids, size, ok := s.cache.Get(key); ok {
		cacheHits.Inc()
		return vectorizer.TokenIDs{IDs: ids, Size: size}, nil
	}
	cacheMisses.Inc()
	row, err := s.vec.ConvertToIDs(sentence, maxLength)
	if err != nil {
		return row, err
	}
	s.cache.Put(key, row.IDs, row.Size)
	return row, nil
}

// cacheKey length-prefixes every token so that no two token splits of the
// same bytes share a key.
func cacheKey(sentence []string, maxLength int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(maxLength))
	b.WriteByte('|')
	for _, tok := range sentence {
		b.WriteString(strconv.Itoa(len(tok)))
		b.WriteByte(':')
		b.WriteString(tok)
	}
	return b.String()
}

func (s *Server) resolveMaxLength(requested *int) int {
	if requested != nil {
		return *requested
	}
	return s.maxLength
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

var errBusy = errors.New("server busy")

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vectorizer.ErrInvalidMaxLength):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errBusy), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("Vectorize failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeCBOR(w http.ResponseWriter, v any) {
	data, err := cbor.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(data)
}

func observe(endpoint string, start time.Time) {
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
