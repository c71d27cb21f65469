package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/adapters/metrics"
	"go.trai.ch/sidefx/internal/adapters/reports"
	"go.trai.ch/sidefx/internal/adapters/web"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports/mocks"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func prop(typ, name string) domain.LocatedProperty {
	loc := domain.Locator{Result: domain.TypeAtLocation{Type: typ, Start: 1, End: 4}}
	return domain.NewLocatedProperty(loc, domain.NewProperty(name))
}

func sampleFile() *domain.ReportFile {
	v := domain.NewValue([]domain.Line{domain.PlainLine("1")})
	w := domain.NewValue([]domain.Line{domain.PlainLine("2")})
	uid := prop("calc.Let", "uid")
	steps := []domain.LocatedProperty{prop("calc.Let", "label"), prop("calc.Print", "text")}
	return &domain.ReportFile{
		RunID: "run-1",
		Reports: []*domain.Report{
			domain.NewPropertyValueDiff(uid, v, steps, w),
			domain.NewFlakyProperty(uid, false, v, w),
			domain.NewExceptionThrown(prop("calc.Print", "value"), "undeclared variable"),
		},
	}
}

func newServer(t *testing.T) (*web.Server, *metrics.Metrics) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	m := metrics.New()
	return web.New(log, reports.NewStore(), m), m
}

func writeFile(t *testing.T, path string, file *domain.ReportFile) {
	t.Helper()
	require.NoError(t, reports.NewStore().Save(context.Background(), path, file))
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServer_SummaryKeepsCheapestCost(t *testing.T) {
	path := filepath.Join(t.TempDir(), domain.ReportFileName)
	writeFile(t, path, sampleFile())

	srv, _ := newServer(t)
	require.NoError(t, srv.Open(path))

	s := srv.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, []string{domain.ReportFileName}, s.Files)
	assert.Equal(t, 1, s.ByType[domain.ReportFlakyProperty])
	assert.Equal(t, 1, s.ByType[domain.ReportPropertyValueDiff])

	require.Len(t, s.Subjects, 2)
	assert.Equal(t, "Let.uid", s.Subjects[0].Key)
	require.NotNil(t, s.Subjects[0].Cost)
	assert.Equal(t, 0, *s.Subjects[0].Cost)
	assert.Equal(t, domain.ReportFlakyProperty, s.Subjects[0].Type)
	assert.Equal(t, "Print.value", s.Subjects[1].Key)
	assert.Nil(t, s.Subjects[1].Cost)
}

func TestServer_FileRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), domain.ReportFileName)
	writeFile(t, path, sampleFile())

	srv, _ := newServer(t)
	require.NoError(t, srv.Open(path))
	router := srv.Router()

	w := get(t, router, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "3 reports in 1 file(s)")
	assert.Contains(t, w.Body.String(), "Let.uid")

	w = get(t, router, "/reports.json")
	require.Equal(t, http.StatusOK, w.Code)
	var file domain.ReportFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, "run-1", file.RunID)
	assert.Len(t, file.Reports, 3)

	w = get(t, router, "/api/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var s web.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, 3, s.Total)

	w = get(t, router, "/reports.json/"+domain.ReportFileName)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `sidefx_stored_reports{type="FLAKY_PROPERTY"} 1`)
}

func TestServer_DirectoryRoutes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, domain.WorkerReportFileName(0)), sampleFile())
	writeFile(t, filepath.Join(dir, domain.WorkerReportFileName(1)), &domain.ReportFile{RunID: "run-2"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), domain.FilePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), domain.FilePerm))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.json"), []byte("{}"), domain.FilePerm))

	srv, _ := newServer(t)
	require.NoError(t, srv.Open(dir))
	assert.Equal(t, 3, srv.Summary().Total)
	router := srv.Router()

	w := get(t, router, "/reports.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"files":["reports_0.json","reports_1.json"]}`, w.Body.String())

	w = get(t, router, "/reports.json/reports_1.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-2")

	tests := []struct {
		path string
		code int
	}{
		{"/reports.json/missing.json", http.StatusNotFound},
		{"/reports.json/notes.txt", http.StatusBadRequest},
		{"/reports.json/.hidden.json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.code, get(t, router, tt.path).Code)
		})
	}

	w = get(t, router, "/reports.json/..%2Fsecret.json")
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestServer_OpenMissingPath(t *testing.T) {
	srv, _ := newServer(t)
	err := srv.Open(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, domain.ErrReportReadFailed)
}

func TestResolvePort(t *testing.T) {
	env := func(v string) func(string) string {
		return func(string) string { return v }
	}

	tests := []struct {
		name    string
		flag    int
		env     string
		want    int
		wantErr bool
	}{
		{name: "default", flag: -1, want: web.DefaultPort},
		{name: "env", flag: -1, env: "9100", want: 9100},
		{name: "flag wins", flag: 9200, env: "9100", want: 9200},
		{name: "free port", flag: 0, env: "9100", want: 0},
		{name: "bad env", flag: -1, env: "http", wantErr: true},
		{name: "out of range", flag: -1, env: "70000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := web.ResolvePort(tt.flag, env(tt.env))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfigInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServer_ServeReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), domain.ReportFileName)
	writeFile(t, path, &domain.ReportFile{RunID: "empty"})

	srv, _ := newServer(t)
	require.NoError(t, srv.Open(path))
	assert.Equal(t, 0, srv.Summary().Total)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, 0, func(addr string) { ready <- addr })
	}()

	select {
	case addr := <-ready:
		assert.NotEmpty(t, addr)
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	}

	writeFile(t, path, sampleFile())
	assert.Eventually(t, func() bool {
		return srv.Summary().Total == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
