// Package web serves stored report files over HTTP.
package web

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// DefaultPort is used when neither a flag nor PORT names one.
	DefaultPort = 8000
	// PortEnv is the environment variable consulted for the port.
	PortEnv = "PORT"

	shutdownTimeout = 5 * time.Second
)

// StoredReportsGauge receives the per-type counts of the served reports.
type StoredReportsGauge interface {
	SetStoredReports(counts map[domain.ReportType]int)
	Handler() http.Handler
}

// SubjectCost is the cheapest known reproduction of one logical issue.
type SubjectCost struct {
	Key  string            `json:"key"`
	Type domain.ReportType `json:"type"`
	// Cost is nil when no report of the issue carries a reproduction.
	Cost *int `json:"cost"`
}

// Summary aggregates the served reports.
type Summary struct {
	Files    []string                  `json:"files"`
	Total    int                       `json:"total"`
	ByType   map[domain.ReportType]int `json:"byType"`
	Subjects []SubjectCost             `json:"subjects"`
	LoadedAt time.Time                 `json:"loadedAt"`
}

// Server is a read-only report browser over a report file or a directory of them.
type Server struct {
	logger  ports.Logger
	store   ports.ReportStore
	metrics StoredReportsGauge

	mu      sync.RWMutex
	root    string
	dir     bool
	summary Summary
}

// New creates a Server.
func New(logger ports.Logger, store ports.ReportStore, metrics StoredReportsGauge) *Server {
	return &Server{logger: logger, store: store, metrics: metrics}
}

// Open selects the report file or directory to serve and loads its summary.
func (s *Server) Open(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrReportReadFailed, err.Error()), "path", path)
	}
	s.mu.Lock()
	s.root = path
	s.dir = info.IsDir()
	s.mu.Unlock()
	return s.Reload()
}

// Reload rereads the served reports. Files that fail to load are skipped with a warning.
func (s *Server) Reload() error {
	s.mu.RLock()
	root, dir := s.root, s.dir
	s.mu.RUnlock()

	files := []string{root}
	if dir {
		var err error
		if files, err = listReportFiles(root); err != nil {
			return err
		}
	}

	summary := Summary{ByType: make(map[domain.ReportType]int), LoadedAt: time.Now()}
	cheapest := make(map[string]SubjectCost)
	for _, path := range files {
		file, err := s.store.Load(path)
		if err != nil {
			if !dir {
				return err
			}
			s.logger.Warn("skipping " + filepath.Base(path) + ": " + err.Error())
			continue
		}
		summary.Files = append(summary.Files, filepath.Base(path))
		for _, r := range file.Reports {
			summary.Total++
			summary.ByType[r.Type]++
			addCost(cheapest, r)
		}
	}
	for _, sc := range cheapest {
		summary.Subjects = append(summary.Subjects, sc)
	}
	slices.SortFunc(summary.Subjects, func(a, b SubjectCost) int {
		return strings.Compare(a.Key, b.Key)
	})

	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetStoredReports(summary.ByType)
	}
	s.logger.Debug("loaded " + strconv.Itoa(summary.Total) + " reports from " + strconv.Itoa(len(summary.Files)) + " files")
	return nil
}

func addCost(cheapest map[string]SubjectCost, r *domain.Report) {
	key := r.IssueKey()
	current, seen := cheapest[key]
	cost, ok := r.ReproductionCost()
	if !seen {
		current = SubjectCost{Key: key, Type: r.Type}
	}
	if ok && (current.Cost == nil || cost < *current.Cost) {
		current.Cost = &cost
		current.Type = r.Type
	}
	cheapest[key] = current
}

// Summary returns the last loaded summary.
func (s *Server) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

func listReportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrReportReadFailed, err.Error()), "path", dir)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>sidefx reports</title></head>
<body>
<h1>sidefx reports</h1>
<p>{{.Total}} reports in {{len .Files}} file(s), loaded {{.LoadedAt.Format "2006-01-02 15:04:05"}}</p>
<ul>{{range .Files}}<li><a href="{{$.Link .}}">{{.}}</a></li>{{end}}</ul>
<table>
<tr><th>Issue</th><th>Type</th><th>Cost</th></tr>
{{range .Subjects}}<tr><td>{{.Key}}</td><td>{{.Type}}</td><td>{{if .Cost}}{{.Cost}}{{else}}-{{end}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type indexPage struct {
	Summary
	dir bool
}

func (p indexPage) Link(name string) string {
	if p.dir {
		return "/reports.json/" + name
	}
	return "/reports.json"
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.SetHTMLTemplate(indexTemplate)

	r.GET("/", s.handleIndex)
	r.GET("/reports.json", s.handleReports)
	r.GET("/reports.json/:name", s.handleReportFile)
	r.GET("/api/summary", s.handleSummary)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Method + " " + c.Request.URL.Path + " " +
			strconv.Itoa(c.Writer.Status()) + " " + time.Since(start).String())
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	s.mu.RLock()
	page := indexPage{Summary: s.summary, dir: s.dir}
	s.mu.RUnlock()
	c.HTML(http.StatusOK, "index", page)
}

func (s *Server) handleReports(c *gin.Context) {
	s.mu.RLock()
	root, dir, files := s.root, s.dir, s.summary.Files
	s.mu.RUnlock()

	if dir {
		if files == nil {
			files = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"files": files})
		return
	}
	c.File(root)
}

func (s *Server) handleReportFile(c *gin.Context) {
	s.mu.RLock()
	root, dir := s.root, s.dir
	s.mu.RUnlock()

	name := c.Param("name")
	if !dir {
		c.JSON(http.StatusNotFound, gin.H{"error": "not serving a directory"})
		return
	}
	if !validFileName(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report file name"})
		return
	}
	path := filepath.Join(root, name)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such report file"})
		return
	}
	c.File(path)
}

func validFileName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`) &&
		filepath.Ext(name) == ".json"
}

func (s *Server) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.Summary())
}

// ResolvePort picks the listening port: flagPort when non-negative, else $PORT, else
// DefaultPort. Port 0 asks the system for a free port.
func ResolvePort(flagPort int, getenv func(string) string) (int, error) {
	if flagPort >= 0 {
		return flagPort, nil
	}
	if v := getenv(PortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return 0, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "invalid port"), PortEnv, v)
		}
		return port, nil
	}
	return DefaultPort, nil
}

// Serve listens on port and serves until ctx is done. The summary is reloaded whenever the
// served reports change on disk. ready, when not nil, receives the bound address.
func (s *Server) Serve(ctx context.Context, port int, ready func(addr string)) error {
	s.mu.RLock()
	root, dir := s.root, s.dir
	s.mu.RUnlock()

	watchDir, target := root, ""
	if !dir {
		watchDir, target = filepath.Dir(root), filepath.Base(root)
	}
	w, err := newWatcher(s.logger, watchDir, target, func() {
		if err := s.Reload(); err != nil {
			s.logger.Warn("reload failed: " + err.Error())
		}
	})
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to watch reports"), "path", watchDir)
	}
	w.Start(ctx)
	defer func() { _ = w.Stop() }()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to listen"), "port", port)
	}
	addr := ln.Addr().String()
	s.logger.Info("serving " + root + " on http://" + addr)
	if ready != nil {
		ready(addr)
	}

	srv := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return zerr.Wrap(err, "server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return zerr.Wrap(err, "shutdown failed")
		}
		<-errCh
		return nil
	}
}
