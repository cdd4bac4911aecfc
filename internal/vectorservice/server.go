package vectorservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ehrlich-b/kgraph/internal/embedding"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/logger"
)

// Embedder is the subset of the embedding package's API the server needs
// to serve /embed requests.
type Embedder interface {
	Dims() int
	Name() string
	EmbedDocument(text, context string) ([]float32, error)
	EmbedQuery(text string) ([]float32, error)
	EmbedBatch(texts, contexts []string) ([][]float32, error)
}

// Server is the long-lived VectorService HTTP process.
type Server struct {
	matrix   *Matrix
	embedder Embedder
	addr     string
}

// NewServer constructs a Server bound to addr (e.g. "127.0.0.1:8099"),
// scoring against matrix and embedding /embed requests via embedder.
func NewServer(addr string, matrix *Matrix, embedder Embedder) *Server {
	return &Server{matrix: matrix, embedder: embedder, addr: addr}
}

// Bootstrap loads every stored embedding from idx into the matrix, in
// slug order, so the service serves consistent results immediately after
// (re)start.
func Bootstrap(matrix *Matrix, idx *index.Index) error {
	rows, err := idx.AllEmbeddings()
	if err != nil {
		return fmt.Errorf("vectorservice: bootstrap: %w", err)
	}
	ids := make([]string, len(rows))
	vecs := make([][]float32, len(rows))
	for i, r := range rows {
		ids[i] = r.Slug
		vecs[i] = embedding.BytesToVec(r.Vector)
	}
	matrix.AddBatch(ids, vecs)
	logger.Info("vectorservice: bootstrapped matrix", "n_vectors", len(ids))
	return nil
}

// ListenAndServe blocks, serving until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("vectorservice: listen %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /embed", s.handleEmbed)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /add", s.handleAdd)
	mux.HandleFunc("POST /add_batch", s.handleAddBatch)
}

type healthResponse struct {
	Status   string `json:"status"`
	NVectors int    `json:"n_vectors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", NVectors: s.matrix.Len()})
}

type embedRequest struct {
	Texts    []string `json:"texts"`
	Context  string   `json:"context,omitempty"`
	TaskType string   `json:"task_type"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "texts is required")
		return
	}

	var vecs [][]float32
	var err error
	switch req.TaskType {
	case "query":
		vecs = make([][]float32, len(req.Texts))
		for i, t := range req.Texts {
			vecs[i], err = s.embedder.EmbedQuery(t)
			if err != nil {
				break
			}
		}
	default:
		contexts := make([]string, len(req.Texts))
		for i := range req.Texts {
			contexts[i] = req.Context
		}
		vecs, err = s.embedder.EmbedBatch(req.Texts, contexts)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, embedResponse{Vectors: vecs})
}

type searchRequest struct {
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
}

type searchHit struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.K <= 0 {
		req.K = 10
	}
	results := s.matrix.Search(req.Vector, req.K)
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{ID: r.ID, Score: r.Score}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: hits})
}

type addRequest struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	s.matrix.Add(req.ID, req.Vector)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addBatchRequest struct {
	IDs     []string    `json:"ids"`
	Vectors [][]float32 `json:"vectors"`
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var req addBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.IDs) != len(req.Vectors) {
		writeError(w, http.StatusBadRequest, "ids and vectors length mismatch")
		return
	}
	s.matrix.AddBatch(req.IDs, req.Vectors)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
