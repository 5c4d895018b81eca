// Package server serves the weekly report dashboard, the category template
// editor and a small JSON API.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/camppulse/internal/database"
	"github.com/TobiSchelling/camppulse/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const recentRuns = 10

// Runner runs the pipeline for one camp-week.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

// Options configure a Server.
type Options struct {
	AnalyzerVersion string
	Location        *time.Location
	Logger          logrus.FieldLogger
}

// Server is the HTTP server for serving weekly reports.
type Server struct {
	db      *database.DB
	runner  Runner
	version string
	loc     *time.Location
	log     logrus.FieldLogger
	pages   map[string]*template.Template
	mux     *http.ServeMux
}

// New creates a new Server. A nil runner disables POST /api/runs.
func New(db *database.DB, runner Runner, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"formatWeek": database.FormatWindowDisplay,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"pct": func(part, total int) int {
			if total == 0 {
				return 0
			}
			return part * 100 / total
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so that every page can define
	// its own "title" and "content".
	pageNames := []string{"index.html", "report.html", "categories.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:      db,
		runner:  runner,
		version: opts.AnalyzerVersion,
		loc:     opts.Location,
		log:     opts.Logger,
		pages:   pages,
		mux:     http.NewServeMux(),
	}
	if s.version == "" {
		s.version = "v1"
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /reports/{camp}/{week}", s.handleReport)
	s.mux.HandleFunc("GET /camps/{camp}/categories", s.handleCategories)
	s.mux.HandleFunc("POST /camps/{camp}/categories", s.handleAddCategory)
	s.mux.HandleFunc("POST /camps/{camp}/categories/{id}/{action}", s.handleCategoryAction)

	s.mux.HandleFunc("GET /api/camps", s.handleAPICamps)
	s.mux.HandleFunc("GET /api/reports/{camp}/{week}", s.handleAPIReport)
	s.mux.HandleFunc("POST /api/runs", s.handleAPIRun)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	camps, err := s.db.GetAllCamps()
	if err != nil {
		s.serverError(w, err)
		return
	}
	reports, err := s.db.ListWeeklyReports("")
	if err != nil {
		s.serverError(w, err)
		return
	}
	runs, err := s.db.GetRecentRuns(recentRuns)
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Camps":   camps,
		"Reports": reports,
		"Runs":    runs,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	campID, week := r.PathValue("camp"), r.PathValue("week")
	camp, _ := s.db.GetCamp(campID)
	report, err := s.loadReport(campID, week)
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.render(w, "report.html", map[string]any{
		"Camp":   camp,
		"CampID": campID,
		"Week":   week,
		"Report": report,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	campID := r.PathValue("camp")
	camp, err := s.db.GetCamp(campID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if camp == nil {
		http.NotFound(w, r)
		return
	}
	cats, err := s.db.GetCategories(campID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.render(w, "categories.html", map[string]any{
		"Camp":       camp,
		"Categories": cats,
	})
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	campID := r.PathValue("camp")
	label := strings.TrimSpace(r.FormValue("label"))
	description := strings.TrimSpace(r.FormValue("description"))

	if label != "" {
		var desc *string
		if description != "" {
			desc = &description
		}
		if _, err := s.db.InsertCategory(campID, label, desc); err != nil {
			s.log.WithError(err).Warnf("Adding category %q failed", label)
		}
	}
	http.Redirect(w, r, categoriesPath(campID), http.StatusFound)
}

func (s *Server) handleCategoryAction(w http.ResponseWriter, r *http.Request) {
	campID := r.PathValue("camp")
	back := categoriesPath(campID)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Redirect(w, r, back, http.StatusFound)
		return
	}
	cat, err := s.db.GetCategory(id)
	if err != nil || cat == nil || cat.CampID != campID {
		http.Redirect(w, r, back, http.StatusFound)
		return
	}

	switch r.PathValue("action") {
	case "toggle":
		err = s.db.ToggleCategory(id)
	case "delete":
		err = s.db.DeleteCategory(id)
	case "edit":
		label := strings.TrimSpace(r.FormValue("label"))
		description := strings.TrimSpace(r.FormValue("description"))
		if label != "" {
			err = s.db.UpdateCategory(id, &label, &description, nil)
		}
	case "up", "down":
		pos := cat.Position - 1
		if r.PathValue("action") == "down" {
			pos = cat.Position + 1
		}
		err = s.db.UpdateCategory(id, nil, nil, &pos)
	}
	if err != nil {
		s.log.WithError(err).Warnf("Category action on %d failed", id)
	}

	http.Redirect(w, r, back, http.StatusFound)
}

type campJSON struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	BoardFeedURL *string `json:"board_feed_url,omitempty"`
}

func (s *Server) handleAPICamps(w http.ResponseWriter, r *http.Request) {
	camps, err := s.db.GetAllCamps()
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]campJSON, 0, len(camps))
	for _, c := range camps {
		out = append(out, campJSON{ID: c.ID, Name: c.Name, BoardFeedURL: c.BoardFeedURL})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.loadReport(r.PathValue("camp"), r.PathValue("week"))
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, err)
		return
	}
	if report == nil {
		s.jsonError(w, http.StatusNotFound, fmt.Errorf("no report for %s/%s", r.PathValue("camp"), r.PathValue("week")))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type runRequest struct {
	CampID string `json:"camp_id"`
	Week   string `json:"week"`
}

type runResponse struct {
	OK        bool           `json:"ok"`
	CampID    string         `json:"camp_id"`
	Week      string         `json:"week"`
	Persisted bool           `json:"persisted"`
	Warnings  []string       `json:"warnings"`
	Errors    []string       `json:"errors"`
	Payload   any            `json:"payload,omitempty"`
	Steps     []stepResponse `json:"steps"`
}

type stepResponse struct {
	Name    string  `json:"name"`
	Summary string  `json:"summary"`
	Seconds float64 `json:"seconds"`
	Error   string  `json:"error,omitempty"`
}

func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.jsonError(w, http.StatusServiceUnavailable, fmt.Errorf("pipeline runs are not enabled"))
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.CampID == "" {
		s.jsonError(w, http.StatusBadRequest, fmt.Errorf("camp_id is required"))
		return
	}
	if req.Week == "" {
		req.Week = database.PreviousWeekID(time.Now(), s.loc)
	}
	if _, _, err := database.ResolveWindow(req.Week, s.loc); err != nil {
		s.jsonError(w, http.StatusBadRequest, err)
		return
	}

	res := s.runner.Run(r.Context(), pipeline.Request{CampID: req.CampID, Week: req.Week})
	resp := runResponse{
		OK:        res.OK(),
		CampID:    res.CampID,
		Week:      res.Week,
		Persisted: res.Persisted,
		Warnings:  nonNil(res.Warnings),
		Errors:    nonNil(res.Errors),
	}
	if res.Payload != nil {
		resp.Payload = res.Payload
	}
	for _, st := range res.Steps {
		sr := stepResponse{Name: st.Name, Summary: st.Summary, Seconds: st.Duration.Seconds()}
		if st.Err != nil {
			sr.Error = st.Err.Error()
		}
		resp.Steps = append(resp.Steps, sr)
	}

	status := http.StatusOK
	if !res.OK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Server) loadReport(campID, week string) (*reportView, error) {
	row, err := s.db.GetWeeklyReport(campID, week, s.version)
	if err != nil || row == nil {
		return nil, err
	}
	rep, err := pipeline.DecodeReport(row)
	if err != nil {
		return nil, err
	}
	return &reportView{WeeklyReport: rep}, nil
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.serverError(w, fmt.Errorf("template %s not found", name))
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.serverError(w, fmt.Errorf("rendering %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("Request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("API request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func categoriesPath(campID string) string {
	return "/camps/" + campID + "/categories"
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv.log.Infof("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
