package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gktracker/lib/telemetry"
)

const report_handler_failed = "server.handler"

type Server struct {
	cache *Cache
	opts  Options
	tel   telemetry.API
}

func NewServer(tel telemetry.API, cache *Cache, opts Options) *Server {
	return &Server{
		cache: cache,
		opts:  opts.withDefaults(),
		tel:   telemetry.NewScopedAPI("dashboard", tel),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/tables", s.handleTables)
	mux.HandleFunc("GET /api/tables/{name}", s.handleTable)
	mux.HandleFunc("GET /api/goalkeepers", s.handleGoalkeepers)
	mux.HandleFunc("GET /api/goalkeepers/profile", s.handleProfile)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrUnknownTable) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.tel.ReportBroken(report_handler_failed, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": s.cache.Tables()})
}

type tableResponse struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Labels  []string `json:"labels"`
	Rows    [][]any  `json:"rows"`
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "server:handleTable")
	defer span.End()

	name := r.PathValue("name")
	query := r.URL.Query()
	useLabels := !strings.EqualFold(query.Get("labels"), "false")

	filters := map[string]string{}
	for k, v := range query {
		if k == "labels" || len(v) == 0 {
			continue
		}
		filters[k] = v[0]
	}

	frame, err := s.cache.Query(ctx, name, filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	frame = CleanFrame(frame)

	labels := frame.Columns
	if useLabels {
		mapping := s.cache.Labels(name)
		labels = make([]string, len(frame.Columns))
		for i, col := range frame.Columns {
			labels[i] = mapping[col]
		}
	}
	rows := frame.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, tableResponse{
		Table:   name,
		Columns: frame.Columns,
		Labels:  labels,
		Rows:    rows,
	})
}

func (s *Server) handleGoalkeepers(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "server:handleGoalkeepers")
	defer span.End()

	names, err := s.goalkeeperNames(ctx)
	if errors.Is(err, ErrUnknownTable) {
		writeJSON(w, http.StatusOK, map[string]any{"goalkeepers": []Match{}})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	matches := Rank(r.URL.Query().Get("q"), names)
	if matches == nil {
		matches = []Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"goalkeepers": matches})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "server:handleProfile")
	defer span.End()

	profile, err := s.profile(ctx, r.URL.Query().Get("name"))
	if errors.Is(err, ErrUnknownTable) {
		writeJSON(w, http.StatusOK, EmptyProfile())
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.cache.Status())
}
