package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"modschedule/internal/block"
	"modschedule/internal/catalog"
	"modschedule/internal/config"
	"modschedule/internal/export"
	appLog "modschedule/internal/log"
	"modschedule/internal/model"
	"modschedule/internal/search"
)

// CourseSource resolves course codes into courses. *catalog.Fetcher
// implements it.
type CourseSource interface {
	FetchAll(ctx context.Context, year int, semester string, codes []string) ([]model.Course, error)
}

// Server provides the HTTP API for timetable searches.
type Server struct {
	cfg    *config.Config
	source CourseSource
	mux    *http.ServeMux
	now    func() time.Time

	// Fetched courses, so repeated searches over the same codes do not hit
	// the schedule site (or even the disk cache) again.
	coursesMu sync.RWMutex
	courses   map[courseKey]courseEntry
}

type courseKey struct {
	year     int
	semester string
	code     string
}

type courseEntry struct {
	course    model.Course
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, source CourseSource) *Server {
	s := &Server{
		cfg:     cfg,
		source:  source,
		mux:     http.NewServeMux(),
		now:     time.Now,
		courses: make(map[courseKey]courseEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="modschedule", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/timetable", s.handleTimetable)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// timetableRequest is the JSON request body for /api/timetable.
type timetableRequest struct {
	Codes    []string `json:"codes"`
	Year     int      `json:"year,omitempty"`
	Semester string   `json:"semester,omitempty"`
	// Blocks is block CSV text, header line included.
	Blocks string `json:"blocks,omitempty"`
	Seed   *int64 `json:"seed,omitempty"`
}

// timetableResponse is the JSON response shape for /api/timetable.
type timetableResponse struct {
	Timetable model.Assignment `json:"timetable"`
	Seed      int64            `json:"seed"`
	Steps     int              `json:"steps"`
}

const maxRequestBytes = 1 << 20

// handleTimetable searches a timetable for the requested courses.
//
// POST /api/timetable[?format=ics]
//   - 200 with the timetable (or an iCalendar file for format=ics)
//   - 400 for malformed requests, blocks or courses
//   - 404 when no clash-free timetable exists
//   - 502 when the schedule site could not be reached
func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()

	var req timetableRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	codes := catalog.NormalizeCodes(req.Codes)
	if len(codes) == 0 {
		writeError(w, http.StatusBadRequest, "codes must not be empty")
		return
	}
	if req.Year <= 0 {
		req.Year = s.cfg.AcademicYear
	}
	if req.Semester == "" {
		req.Semester = s.cfg.Semester
	}

	var blocks []model.Block
	if strings.TrimSpace(req.Blocks) != "" {
		var err error
		blocks, err = block.ParseString(req.Blocks, s.cfg.DefaultTeachingWeeks)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid blocks: "+err.Error())
			return
		}
	}

	appLog.Info("api timetable request",
		"codes", strings.Join(codes, ","),
		"year", req.Year,
		"semester", req.Semester,
		"blocks", len(blocks),
	)

	courses, err := s.lookupCourses(ctx, req.Year, req.Semester, codes)
	if err != nil {
		if errors.Is(err, catalog.ErrNotAvailable) || model.IsInvalid(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("api timetable: course fetch failed", err)
		writeError(w, http.StatusBadGateway, "failed to fetch class schedules")
		return
	}

	res, ok, err := search.FindSchedule(ctx, courses, blocks, search.Options{Seed: req.Seed, MaxSteps: s.cfg.MaxSteps})
	switch {
	case err != nil && model.IsInvalid(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, search.ErrStepBudget):
		writeError(w, http.StatusUnprocessableEntity, "search step budget exhausted")
		return
	case err != nil:
		appLog.Error("api timetable: search halted", err)
		writeError(w, http.StatusServiceUnavailable, "search interrupted")
		return
	case !ok:
		writeError(w, http.StatusNotFound, "no timetable found")
		return
	}

	if r.URL.Query().Get("format") == "ics" {
		s.writeICS(w, courses, res.Assignment)
		return
	}
	writeJSON(w, http.StatusOK, timetableResponse{
		Timetable: res.Assignment,
		Seed:      res.Seed,
		Steps:     res.Steps,
	})
}

func (s *Server) writeICS(w http.ResponseWriter, courses []model.Course, a model.Assignment) {
	start, err := s.cfg.TermStartTime()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cal := export.Calendar{TermStart: start, RecessAfterWeek: s.cfg.RecessAfterWeek}

	var buf bytes.Buffer
	if err := export.WriteICS(&buf, cal, courses, a); err != nil {
		appLog.Error("api timetable: ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="timetable.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// lookupCourses returns courses in the order of codes, fetching only the ones
// missing from the in-memory cache.
func (s *Server) lookupCourses(ctx context.Context, year int, semester string, codes []string) ([]model.Course, error) {
	ttl := s.cfg.CacheTTL()
	now := s.now()

	out := make([]model.Course, len(codes))
	var missing []string
	var missingAt []int

	s.coursesMu.RLock()
	for i, code := range codes {
		e, ok := s.courses[courseKey{year, semester, code}]
		if ok && ttl > 0 && now.Sub(e.updatedAt) < ttl {
			out[i] = e.course
			continue
		}
		missing = append(missing, code)
		missingAt = append(missingAt, i)
	}
	s.coursesMu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.source.FetchAll(ctx, year, semester, missing)
	if err != nil {
		return nil, err
	}

	s.coursesMu.Lock()
	for j, c := range fetched {
		out[missingAt[j]] = c
		s.courses[courseKey{year, semester, missing[j]}] = courseEntry{course: c, updatedAt: now}
	}
	s.coursesMu.Unlock()

	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
