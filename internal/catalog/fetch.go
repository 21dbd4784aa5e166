package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "modschedule/internal/log"
	"modschedule/internal/model"
)

// DefaultScheduleURL is the class schedule search endpoint.
const DefaultScheduleURL = "https://wish.wis.ntu.edu.sg/webexe/owa/AUS_SCHEDULE.main_display1"

// Query identifies the schedule page of one course in one semester.
type Query struct {
	Year     int
	Semester string
	Code     string
}

func (q Query) String() string {
	return fmt.Sprintf("%d;%s/%s", q.Year, q.Semester, q.Code)
}

// FetchResult contains the outcome of fetching a single course page.
type FetchResult struct {
	Query     Query
	Body      []byte // HTML payload (either freshly fetched or from cache)
	FromCache bool
}

// cacheEntry holds metadata for a single cached course page.
type cacheEntry struct {
	Query     string    `json:"query"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// URL is the schedule search endpoint. Empty means DefaultScheduleURL.
	URL string
	// CacheDir holds per-query cache subdirectories.
	CacheDir string
	// TTL is how long a cached page is served without asking the site.
	// Zero always asks the site and only falls back to the cache.
	TTL time.Duration
	// Concurrency bounds FetchAll. Zero or less means 4.
	Concurrency int
	// DefaultWeeks is used for classes without a teaching week remark.
	DefaultWeeks []int
	Client       *http.Client
}

// Fetcher downloads class schedule pages with a disk-backed cache.
type Fetcher struct {
	client       *http.Client
	url          string
	cacheDir     string
	ttl          time.Duration
	concurrency  int
	defaultWeeks []int
	now          func() time.Time
}

// NewFetcher creates a new Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:       cfg.Client,
		url:          cfg.URL,
		cacheDir:     cfg.CacheDir,
		ttl:          cfg.TTL,
		concurrency:  cfg.Concurrency,
		defaultWeeks: cfg.DefaultWeeks,
		now:          time.Now,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 15 * time.Second}
	}
	if f.url == "" {
		f.url = DefaultScheduleURL
	}
	if f.cacheDir == "" {
		// Caller should set this explicitly; fall back to a relative dir so
		// development runs work anywhere.
		f.cacheDir = "./var/schedule-cache"
	}
	if f.concurrency <= 0 {
		f.concurrency = 4
	}
	if len(f.defaultWeeks) == 0 {
		f.defaultWeeks = DefaultTeachingWeeks()
	}
	return f
}

// FetchAll fetches and parses the given courses concurrently. The first
// failure cancels the remaining fetches. Courses are returned in the order
// of codes.
func (f *Fetcher) FetchAll(ctx context.Context, year int, semester string, codes []string) ([]model.Course, error) {
	courses := make([]model.Course, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, code := range codes {
		g.Go(func() error {
			q := Query{Year: year, Semester: semester, Code: strings.ToUpper(strings.TrimSpace(code))}
			res, err := f.FetchCourse(gctx, q)
			if err != nil {
				appLog.Error("course fetch failed", err, "query", q.String())
				return fmt.Errorf("fetch %s: %w", q.Code, err)
			}
			course, err := ParseCourse(res.Body, f.defaultWeeks)
			if err != nil {
				return fmt.Errorf("parse %s: %w", q.Code, err)
			}
			courses[i] = course
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return courses, nil
}

// FetchCourse fetches a single course page. A cached page younger than the TTL
// is served directly; otherwise the site is asked and the stale cached page
// is served when the site cannot be reached or answers with an error.
func (f *Fetcher) FetchCourse(ctx context.Context, q Query) (FetchResult, error) {
	if q.Code == "" {
		return FetchResult{}, errors.New("course code is empty")
	}

	cachePath := f.cachePathForQuery(q)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, metaErr := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	if metaErr == nil && len(cachedBody) > 0 && f.ttl > 0 && f.now().Sub(meta.UpdatedAt) < f.ttl {
		appLog.Debug("course fetch served from cache", "query", q.String(), "age", f.now().Sub(meta.UpdatedAt).String())
		return FetchResult{Query: q, Body: cachedBody, FromCache: true}, nil
	}

	form := url.Values{
		"acadsem":       {strconv.Itoa(q.Year) + ";" + q.Semester},
		"r_course_yr":   {""},
		"r_subj_code":   {q.Code},
		"r_search_type": {"F"}, // F: full-time
		"boption":       {"Search"},
		"staff_access":  {"false"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, strings.NewReader(form.Encode()))
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")

	appLog.Info("course fetch start", "query", q.String())

	resp, err := f.client.Do(req)
	if err != nil {
		// Network error; if we have a cached body, fall back to it.
		if len(cachedBody) > 0 {
			appLog.Error("course fetch network error, using cached body", err, "query", q.String())
			return FetchResult{Query: q, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if len(cachedBody) > 0 {
			appLog.Error("course fetch non-OK, using cached body", errors.New(resp.Status), "query", q.String(), "status", resp.StatusCode)
			return FetchResult{Query: q, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("%s status fetching class schedule", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, err
	}
	if IsUnavailable(body) {
		return FetchResult{}, fmt.Errorf("%w: %s in %d semester %s", ErrNotAvailable, q.Code, q.Year, q.Semester)
	}

	if err := f.saveCache(cachePath, cacheEntry{Query: q.String()}, body); err != nil {
		// Log but still return the freshly fetched body.
		appLog.Error("course cache save failed", err, "query", q.String())
	}
	appLog.Info("course fetch success", "query", q.String(), "bytes", len(body))

	return FetchResult{Query: q, Body: body}, nil
}

func (f *Fetcher) cachePathForQuery(q Query) string {
	sum := sha256.Sum256([]byte(f.url + "\n" + q.String()))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.html"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.html"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = f.now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
