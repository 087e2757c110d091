package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvsplit/internal/application"
	"github.com/JonMunkholm/csvsplit/internal/charset"
	"github.com/JonMunkholm/csvsplit/internal/config"
	"github.com/JonMunkholm/csvsplit/internal/core"
)

type mockService struct {
	mu       sync.Mutex
	requests []core.SplitRequest
	results  map[string]*core.SplitResult
	errs     map[string]error
	infos    map[string]core.FileInfo
}

func (m *mockService) InspectPath(_ context.Context, path string) (core.FileInfo, error) {
	if err := m.errs[path]; err != nil {
		return core.FileInfo{}, err
	}
	return m.infos[path], nil
}

func (m *mockService) SplitNow(_ context.Context, req core.SplitRequest, onProgress core.ProgressFunc) (*core.SplitResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if onProgress != nil {
		onProgress(core.SplitProgress{Phase: core.PhaseComplete})
	}
	return m.results[req.Path], m.errs[req.Path]
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	return cfg
}

func run(t *testing.T, d *deps, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	if d.cfg == nil {
		d.cfg = testConfig(t)
	}

	var out, errOut bytes.Buffer
	root := newRootCmd(d)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestVersionCmd(t *testing.T) {
	original := version
	version = "test-version-1.0.0"
	defer func() { version = original }()

	// version never touches config or the service.
	var out bytes.Buffer
	root := newRootCmd(&deps{})
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "csvsplit version test-version-1.0.0")
}

func TestSplitCmd_PassesRequest(t *testing.T) {
	svc := &mockService{results: map[string]*core.SplitResult{
		"a.csv": {FileName: "a.csv", Encoding: charset.GBK, Rows: 25, ChunkSize: 10, Chunks: 3,
			OutputDir: "out", Files: []string{"out/a_part1.csv", "out/a_part2.csv", "out/a_part3.csv"}},
	}}

	stdout, _, err := run(t, &deps{svc: svc}, "split", "a.csv", "--rows", "10", "-o", "out")
	require.NoError(t, err)

	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	assert.Equal(t, "a.csv", req.Path)
	assert.Equal(t, 10, req.ChunkSize)
	assert.Equal(t, "out", req.OutputDir)
	assert.Equal(t, "cli", req.Source)

	assert.Contains(t, stdout, "a.csv: 25 rows (GBK) -> 3 files of up to 10 rows in out")
}

func TestSplitCmd_DefaultRows(t *testing.T) {
	svc := &mockService{results: map[string]*core.SplitResult{"a.csv": {}}}

	_, _, err := run(t, &deps{svc: svc}, "split", "a.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, svc.requests[0].ChunkSize)
}

func TestSplitCmd_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no files", []string{"split"}, "requires at least 1 arg"},
		{"zero rows", []string{"split", "a.csv", "--rows", "0"}, "invalid chunk size"},
		{"negative rows", []string{"split", "a.csv", "-n", "-3"}, "invalid chunk size"},
		{"out with many files", []string{"split", "a.csv", "b.csv", "--out", "x"}, "--out can only be used"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			_, _, err := run(t, &deps{svc: svc}, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, svc.requests)
		})
	}
}

func TestSplitCmd_ReportsFailures(t *testing.T) {
	svc := &mockService{
		results: map[string]*core.SplitResult{"good.csv": {Chunks: 1, Files: []string{"x"}}},
		errs:    map[string]error{"empty.csv": core.ErrEmptyTable},
	}

	stdout, stderr, err := run(t, &deps{svc: svc}, "split", "good.csv", "empty.csv")
	require.Error(t, err)
	assert.Equal(t, "1 of 2 files failed", err.Error())
	assert.Len(t, svc.requests, 2, "a failure does not stop later files")
	assert.Contains(t, stdout, "good.csv")
	assert.Contains(t, stderr, "empty.csv: The file has a header but no data rows (SPL001)")
}

func TestSplitCmd_JSON(t *testing.T) {
	svc := &mockService{
		results: map[string]*core.SplitResult{"a.csv": {FileName: "a.csv", Chunks: 2}},
		errs:    map[string]error{"b.csv": core.ErrUnsupportedFile},
	}

	stdout, _, err := run(t, &deps{svc: svc}, "split", "a.csv", "b.csv", "--json")
	require.Error(t, err)

	var outcomes []splitOutcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &outcomes))
	require.Len(t, outcomes, 2)
	assert.Equal(t, 2, outcomes[0].Result.Chunks)
	assert.Nil(t, outcomes[0].Error)
	require.NotNil(t, outcomes[1].Error)
	assert.Equal(t, "SPL003", outcomes[1].Error.Code)
}

func TestInspectCmd(t *testing.T) {
	svc := &mockService{infos: map[string]core.FileInfo{
		"a.csv": {
			Name:               "a.csv",
			SizeLabel:          "1.5 KB",
			Detection:          charset.DetectionResult{Tag: charset.UTF8, Confidence: charset.Certain, BOM: true},
			TotalLines:         26,
			DataRows:           25,
			SuggestedChunkSize: 1000,
		},
	}}

	stdout, _, err := run(t, &deps{svc: svc}, "inspect", "a.csv")
	require.NoError(t, err)
	assert.Contains(t, stdout, "encoding:   UTF-8 (certain)")
	assert.Contains(t, stdout, "bom:        yes")
	assert.Contains(t, stdout, "rows:       25 data rows (26 lines)")
	assert.Contains(t, stdout, "suggested:  1000 rows per file")
}

func TestInspectCmd_Error(t *testing.T) {
	svc := &mockService{errs: map[string]error{"missing.csv": core.ErrFileTooLarge}}

	_, _, err := run(t, &deps{svc: svc}, "inspect", "missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FILE004")
}

func TestWatchCmd_NeedsDirectory(t *testing.T) {
	_, _, err := run(t, &deps{svc: &mockService{}}, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no directory to watch")
}

func TestWatchCmd_InvalidRows(t *testing.T) {
	_, _, err := run(t, &deps{svc: &mockService{}}, "watch", t.TempDir(), "--rows", "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidChunkSize)
}

func TestSplitCmd_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	app, err := application.New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	dir := t.TempDir()
	src := filepath.Join(dir, "orders.csv")
	var b strings.Builder
	b.WriteString("id,total\n")
	for i := 1; i <= 25; i++ {
		b.WriteString("row" + strings.Repeat("x", i%3) + ",1\n")
	}
	require.NoError(t, os.WriteFile(src, []byte(b.String()), 0o644))

	out := filepath.Join(dir, "parts")
	stdout, _, err := run(t, &deps{cfg: cfg, svc: app.Service}, "split", src, "--rows", "10", "--out", out, "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 files of up to 10 rows")

	for i, wantRows := range []int{10, 10, 5} {
		data, err := os.ReadFile(filepath.Join(out, core.PartName("orders", i+1)))
		require.NoError(t, err)
		lines := strings.Split(string(data), "\n")
		assert.Equal(t, "id,total", lines[0])
		assert.Len(t, lines, wantRows+1)
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("explicit missing file fails", func(t *testing.T) {
		err := loadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
		assert.Error(t, err)
	})

	t.Run("explicit file loads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("CSVSPLIT_TEST_VALUE=loaded\n"), 0o644))
		t.Setenv("CSVSPLIT_TEST_VALUE", "")
		os.Unsetenv("CSVSPLIT_TEST_VALUE")

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "loaded", os.Getenv("CSVSPLIT_TEST_VALUE"))
	})
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, "a.csv")

	p.Update(core.SplitProgress{Phase: core.PhaseComplete})
	p.Update(core.SplitProgress{Phase: core.PhaseComplete})
	p.Done()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\r"), "identical updates are drawn once")
	assert.Contains(t, out, "100%")
	assert.True(t, strings.HasSuffix(out, "\n"))
}
