package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvsplit/internal/config"
	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/history"
	"github.com/JonMunkholm/csvsplit/internal/storage"
)

const sampleCSV = "name,qty\nwidget,1\ngadget,2\ngizmo,3\n"

type testEnv struct {
	srv      *Server
	inputDir string
	outDir   string
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	root := t.TempDir()
	cfg, err := config.LoadFrom(func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg.Split.InputDir = filepath.Join(root, "in")
	cfg.Split.OutputDir = filepath.Join(root, "out")
	cfg.Rate.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	if err := os.MkdirAll(cfg.Split.InputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	svc := core.NewService(
		storage.New(storage.Options{MaxFileSize: cfg.Split.MaxFileSize}),
		history.NewMemoryStore(100),
		core.ServiceConfig{
			OutputRoot:  cfg.Split.OutputDir,
			MaxFileSize: cfg.Split.MaxFileSize,
			PreserveBOM: cfg.Split.PreserveBOM,
		},
	)
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { srv.Shutdown(t.Context()) })

	return &testEnv{srv: srv, inputDir: cfg.Split.InputDir, outDir: cfg.Split.OutputDir}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, name, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// waitResult polls the result endpoint until the job has ended.
func (e *testEnv) waitResult(t *testing.T, jobID string) core.SplitResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := e.do(httptest.NewRequest(http.MethodGet, "/api/split/"+jobID+"/result", nil))
		switch rec.Code {
		case http.StatusOK:
			return decode[core.SplitResult](t, rec)
		case http.StatusAccepted:
			time.Sleep(10 * time.Millisecond)
		default:
			t.Fatalf("result status = %d: %s", rec.Code, rec.Body.String())
		}
	}
	t.Fatal("job did not finish")
	return core.SplitResult{}
}

func (e *testEnv) startSplit(t *testing.T, req *http.Request) string {
	t.Helper()
	rec := e.do(req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("split status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[map[string]string](t, rec)["jobId"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<title>CSV Splitter</title>", `id="split-form"`, "100 MB", `id="path"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options header")
	}
}

func TestInspect_Upload(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(uploadRequest(t, "/api/inspect", "stock.csv", sampleCSV, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	info := decode[core.FileInfo](t, rec)
	if info.Name != "stock.csv" {
		t.Errorf("Name = %q", info.Name)
	}
	if info.DataRows != 3 {
		t.Errorf("DataRows = %d, want 3", info.DataRows)
	}
	if info.Detection.Tag != "utf8" {
		t.Errorf("encoding = %q, want utf8", info.Detection.Tag)
	}
	if info.SuggestedChunkSize != 1000 {
		t.Errorf("SuggestedChunkSize = %d, want 1000", info.SuggestedChunkSize)
	}
}

func TestInspect_HTMXFragment(t *testing.T) {
	env := newTestEnv(t, nil)
	req := uploadRequest(t, "/api/inspect", "stock.csv", sampleCSV, nil)
	req.Header.Set("HX-Request", "true")
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Suggested-Rows"); got != "1000" {
		t.Errorf("X-Suggested-Rows = %q, want 1000", got)
	}
	if !strings.Contains(rec.Body.String(), "UTF-8") {
		t.Errorf("fragment missing encoding label: %s", rec.Body.String())
	}
}

func TestSplit_Upload(t *testing.T) {
	env := newTestEnv(t, nil)
	jobID := env.startSplit(t, uploadRequest(t, "/api/split", "stock.csv", sampleCSV, map[string]string{"rows": "2"}))

	res := env.waitResult(t, jobID)
	if res.Error != "" {
		t.Fatalf("result error = %q", res.Error)
	}
	if res.Chunks != 2 || len(res.Files) != 2 {
		t.Fatalf("chunks = %d, files = %v", res.Chunks, res.Files)
	}
	if !strings.HasPrefix(res.OutputDir, env.outDir) {
		t.Errorf("OutputDir = %q, want under %q", res.OutputDir, env.outDir)
	}

	got, err := os.ReadFile(filepath.Join(res.OutputDir, "stock_part2.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "name,qty\ngizmo,3" {
		t.Errorf("part2 = %q", got)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	entries := decode[struct {
		Entries []history.Entry `json:"entries"`
	}](t, rec).Entries
	if len(entries) != 1 || entries[0].JobID != jobID {
		t.Fatalf("history = %+v", entries)
	}
	if entries[0].Status != history.StatusComplete {
		t.Errorf("history status = %q", entries[0].Status)
	}
}

func TestSplit_Path(t *testing.T) {
	env := newTestEnv(t, nil)
	src := filepath.Join(env.inputDir, "stock.csv")
	if err := os.WriteFile(src, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	jobID := env.startSplit(t, jsonRequest(http.MethodPost, "/api/split", `{"path":"stock.csv","rows":1}`))
	res := env.waitResult(t, jobID)

	if res.Chunks != 3 {
		t.Fatalf("chunks = %d, want 3 (error %q)", res.Chunks, res.Error)
	}
	if filepath.Dir(res.OutputDir) != env.inputDir {
		t.Errorf("OutputDir = %q, want next to source", res.OutputDir)
	}
}

func TestSplit_MultipartPathNamesSource(t *testing.T) {
	env := newTestEnv(t, nil)
	src := filepath.Join(env.inputDir, "stock.csv")
	if err := os.WriteFile(src, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	// No file part: the path field is read as a source under the input dir.
	jobID := env.startSplit(t, uploadRequest(t, "/api/split", "", "", map[string]string{"path": "stock.csv", "rows": "2"}))
	res := env.waitResult(t, jobID)

	if res.Chunks != 2 || res.FileName != "stock.csv" {
		t.Fatalf("result = %+v", res)
	}
	if filepath.Dir(res.OutputDir) != env.inputDir {
		t.Errorf("OutputDir = %q, want next to the source in %q", res.OutputDir, env.inputDir)
	}
}

func TestSplit_UploadIgnoresPathField(t *testing.T) {
	env := newTestEnv(t, nil)

	jobID := env.startSplit(t, uploadRequest(t, "/api/split", "stock.csv", sampleCSV, map[string]string{"path": "elsewhere", "rows": "2"}))
	res := env.waitResult(t, jobID)

	if !strings.HasPrefix(res.OutputDir, env.outDir) {
		t.Errorf("OutputDir = %q, want under %q", res.OutputDir, env.outDir)
	}
}

func TestSplit_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "zero rows",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/split", "a.csv", sampleCSV, map[string]string{"rows": "0"})
			},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "SPL002",
		},
		{
			name: "negative json rows",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/split", `{"path":"a.csv","rows":-5}`)
			},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "SPL002",
		},
		{
			name: "not a csv",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/split", "notes.txt", sampleCSV, nil)
			},
			wantCode: http.StatusUnsupportedMediaType,
			wantErr:  "SPL003",
		},
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/split", "", "", map[string]string{"rows": "5"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE005",
		},
		{
			name: "path escapes input dir",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/split", `{"path":"../secret.csv"}`)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "REQ001",
		},
		{
			name:   "paths disabled",
			mutate: func(c *config.Config) { c.Split.InputDir = "" },
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/split", `{"path":"a.csv"}`)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE005",
		},
		{
			name: "missing path file",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/inspect", `{"path":"missing.csv"}`)
			},
			wantCode: http.StatusNotFound,
			wantErr:  "FILE001",
		},
		{
			name:   "too large",
			mutate: func(c *config.Config) { c.Split.MaxFileSize = 10 },
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/split", "a.csv", sampleCSV, nil)
			},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "FILE004",
		},
		{
			name: "bad json",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/split", `{"path":`)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "REQ001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.mutate)
			rec := env.do(tt.req(t))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != tt.wantErr {
				t.Errorf("code = %q, want %q (%s)", resp.Code, tt.wantErr, resp.Message)
			}
		})
	}
}

func TestSplitProgress_Stream(t *testing.T) {
	env := newTestEnv(t, nil)
	jobID := env.startSplit(t, uploadRequest(t, "/api/split", "stock.csv", sampleCSV, map[string]string{"rows": "1"}))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/split/"+jobID+"/progress", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") {
		t.Errorf("stream has no progress events: %s", body)
	}
	if !strings.HasSuffix(body, "event: complete\ndata: {}\n\n") {
		t.Errorf("stream does not end with complete: %s", body)
	}
}

func TestUnknownJob(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/split/nope/result", nil),
		httptest.NewRequest(http.MethodGet, "/api/split/nope/progress", nil),
		httptest.NewRequest(http.MethodPost, "/api/split/nope/cancel", nil),
		httptest.NewRequest(http.MethodPost, "/api/split/nope/resave", nil),
	} {
		rec := env.do(req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", req.Method, req.URL.Path, rec.Code)
			continue
		}
		if code := decode[ErrorResponse](t, rec).Code; code != "JOB003" {
			t.Errorf("%s %s: code = %q, want JOB003", req.Method, req.URL.Path, code)
		}
	}
}

func TestResave(t *testing.T) {
	env := newTestEnv(t, nil)
	jobID := env.startSplit(t, uploadRequest(t, "/api/split", "stock.csv", sampleCSV, map[string]string{"rows": "2"}))
	first := env.waitResult(t, jobID)

	if err := os.RemoveAll(first.OutputDir); err != nil {
		t.Fatal(err)
	}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/split/"+jobID+"/resave", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[core.SplitResult](t, rec)
	if len(res.Files) != 2 {
		t.Errorf("files = %v", res.Files)
	}
	if _, err := os.Stat(filepath.Join(first.OutputDir, "stock_part1.csv")); err != nil {
		t.Errorf("part1 not rewritten: %v", err)
	}
}

func TestHistory_BadLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHistory_HTMX(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("HX-Request", "true")
	rec := env.do(req)

	if !strings.Contains(rec.Body.String(), "No splits yet") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.SplitLimit = 1
	})

	first := env.do(uploadRequest(t, "/api/inspect", "a.csv", sampleCSV, nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	second := env.do(uploadRequest(t, "/api/inspect", "a.csv", sampleCSV, nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Other API routes have their own budget.
	if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history", nil)); rec.Code != http.StatusOK {
		t.Errorf("history status = %d", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec.Code)
	}

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_Window(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.allow("b") {
		t.Error("other client should pass")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.allow("a") {
		t.Error("request after window should pass")
	}
}
