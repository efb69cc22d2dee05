// Package web serves the analyzer state over HTTP: the last plan, dependency
// lookups, the class hierarchy, live session events and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ritzau/impact-analyzer/pkg/analysis"
	"github.com/ritzau/impact-analyzer/pkg/cycles"
	"github.com/ritzau/impact-analyzer/pkg/graph"
	"github.com/ritzau/impact-analyzer/pkg/impact"
	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/model"
	"github.com/ritzau/impact-analyzer/pkg/output"
	"github.com/ritzau/impact-analyzer/pkg/pubsub"
	"github.com/ritzau/impact-analyzer/pkg/session"
	"github.com/ritzau/impact-analyzer/pkg/storage"
)

// Backend is the analysis runner the server reads from and triggers
type Backend interface {
	Run(ctx context.Context, req analysis.Request) (*session.Plan, error)
	LastResult() analysis.Result
	Committed() (*storage.State, bool)
}

// StatusResponse is served by /api/status
type StatusResponse struct {
	State      string    `json:"state"` // "empty", "idle" or "failed"
	Generation uint64    `json:"generation"`
	Units      int       `json:"units"`
	LastRun    time.Time `json:"lastRun,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// DependentsResponse is served by /api/dependents/{symbol}
type DependentsResponse struct {
	Symbol     string           `json:"symbol"`
	Owner      model.UnitKey    `json:"owner,omitempty"`
	Kinds      []model.EdgeKind `json:"kinds"`
	Dependents []model.UnitKey  `json:"dependents"`
	Subclasses []model.UnitKey  `json:"subclasses,omitempty"`
}

// AnalyzeRequest is the body of POST /api/analyze
type AnalyzeRequest struct {
	Changed []model.UnitKey `json:"changed"`
	Full    bool            `json:"full"`
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	backend   Backend
	publisher pubsub.Publisher
	gatherer  prometheus.Gatherer

	// runs triggered over HTTP outlive their request
	runCtx context.Context
}

// NewServer creates a new web server. gatherer may be nil to serve the
// default registry.
func NewServer(backend Backend, publisher pubsub.Publisher, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:    mux.NewRouter(),
		backend:   backend,
		publisher: publisher,
		gatherer:  gatherer,
		runCtx:    context.Background(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler with request logging
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoint
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/plan", s.handlePlan).Methods("GET")
	s.router.HandleFunc("/api/analyze", s.handleAnalyze).Methods("POST")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/hierarchy", s.handleHierarchy).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")
	s.router.HandleFunc("/api/symbols/{symbol}", s.handleSymbol).Methods("GET")
	s.router.HandleFunc("/api/dependents/{symbol}", s.handleDependents).Methods("GET")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if errors.Is(err, pubsub.ErrUnknownTopic) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.WarnContext(r.Context(), "error writing SSE event", "topic", topic, "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res := s.backend.LastResult()
	status := StatusResponse{State: "empty", LastRun: res.At}

	if st, ok := s.backend.Committed(); ok {
		status.State = "idle"
		status.Generation = uint64(st.Snapshots.Generation())
		status.Units = len(st.Snapshots.Units())
	}
	if res.Err != nil {
		status.State = "failed"
		status.Error = res.Err.Error()
	}
	writeJSON(w, r, status)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	res := s.backend.LastResult()
	if res.Plan == nil && res.Err == nil {
		http.Error(w, "no analysis has run yet", http.StatusNotFound)
		return
	}
	writeJSON(w, r, output.NewReport(res.Plan, res.Err))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}
	}
	if !body.Full && len(body.Changed) == 0 {
		http.Error(w, "nothing to analyze: set changed or full", http.StatusBadRequest)
		return
	}

	req := analysis.Request{Changed: body.Changed, Full: body.Full, Reason: "requested over HTTP"}
	ctx := logging.WithRequestID(s.runCtx, logging.GetRequestID(r.Context()))
	go func() {
		if _, err := s.backend.Run(ctx, req); err != nil {
			logging.WarnContext(ctx, "requested analysis failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// committed writes 404 and returns false when there is no state yet
func (s *Server) committed(w http.ResponseWriter) (*storage.State, bool) {
	st, ok := s.backend.Committed()
	if !ok {
		http.Error(w, "no committed analysis state", http.StatusNotFound)
	}
	return st, ok
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	st, ok := s.committed(w)
	if !ok {
		return
	}
	writeJSON(w, r, st.Index.View())
}

func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	st, ok := s.committed(w)
	if !ok {
		return
	}
	hg := graph.BuildHierarchy(st.Index, st.Snapshots)
	data, err := hg.DOT("hierarchy")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.Write(data)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	st, ok := s.committed(w)
	if !ok {
		return
	}
	found := cycles.FindHierarchyCycles(graph.BuildHierarchy(st.Index, st.Snapshots))
	if found == nil {
		found = []cycles.HierarchyCycle{}
	}
	writeJSON(w, r, found)
}

func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	st, ok := s.committed(w)
	if !ok {
		return
	}
	name := mux.Vars(r)["symbol"]
	snap, found := st.Snapshots.Current(name)
	if !found {
		http.Error(w, fmt.Sprintf("symbol %s is not declared", name), http.StatusNotFound)
		return
	}
	writeJSON(w, r, snap)
}

// handleDependents lists the units with edges into a symbol. ?kind= narrows
// the edge kinds (comma separated), ?transitive=true adds the SUBCLASSES
// closure a supertype change would reach.
func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	st, ok := s.committed(w)
	if !ok {
		return
	}
	name := mux.Vars(r)["symbol"]

	kinds, err := parseKinds(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := DependentsResponse{
		Symbol:     name,
		Kinds:      kinds,
		Dependents: st.Index.EdgesInto(name, kinds...),
	}
	resp.Owner, _ = st.Snapshots.OwnerOf(name)
	if r.URL.Query().Get("transitive") == "true" {
		resp.Subclasses = impact.NewExpander(st.Index, st.Snapshots).SubclassClosure(name)
	}
	writeJSON(w, r, resp)
}

func parseKinds(param string) ([]model.EdgeKind, error) {
	if param == "" {
		return model.AllEdgeKinds(), nil
	}
	var kinds []model.EdgeKind
	for _, part := range strings.Split(param, ",") {
		kind := model.EdgeKind(strings.ToUpper(strings.TrimSpace(part)))
		valid := false
		for _, k := range model.AllEdgeKinds() {
			if k == kind {
				valid = true
			}
		}
		if !valid {
			return nil, fmt.Errorf("unknown edge kind %q", part)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WarnContext(r.Context(), "error encoding response", "path", r.URL.Path, "error", err)
	}
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	s.runCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
