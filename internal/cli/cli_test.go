package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/config"
	"github.com/wesleyorama2/volley/internal/demo"
	"github.com/wesleyorama2/volley/internal/workload"
)

func TestParseStages(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []config.StageConfig
		wantErr bool
	}{
		{
			name:  "single stage",
			input: "30s:10",
			want:  []config.StageConfig{{Duration: "30s", Target: 10, Name: "stage-1"}},
		},
		{
			name:  "ramp modes",
			input: "30s:20:linear, 1m:20 ,10s:0:STEP",
			want: []config.StageConfig{
				{Duration: "30s", Target: 20, Ramp: "linear", Name: "stage-1"},
				{Duration: "1m", Target: 20, Name: "stage-2"},
				{Duration: "10s", Target: 0, Ramp: "step", Name: "stage-3"},
			},
		},
		{
			name:  "compound duration",
			input: "1m30s:5",
			want:  []config.StageConfig{{Duration: "1m30s", Target: 5, Name: "stage-1"}},
		},
		{name: "missing target", input: "30s", wantErr: true},
		{name: "too many fields", input: "30s:10:linear:x", wantErr: true},
		{name: "bad duration", input: "soon:10", wantErr: true},
		{name: "bad target", input: "30s:ten", wantErr: true},
		{name: "empty", input: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStages(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"Content-Type: application/json", "X-Token:abc:def"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Content-Type": "application/json", "X-Token": "abc:def"}, h)

	h, err = parseHeaders(nil)
	require.NoError(t, err)
	assert.Nil(t, h)

	_, err = parseHeaders([]string{"no-colon"})
	assert.Error(t, err)
	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestBuildConfig(t *testing.T) {
	tests := []struct {
		name    string
		flags   runFlags
		wantErr bool
		check   func(t *testing.T, cfg *config.TestConfig)
	}{
		{
			name:  "constant VUs",
			flags: runFlags{url: "http://localhost/health", method: "get", vus: 5, duration: "10s"},
			check: func(t *testing.T, cfg *config.TestConfig) {
				assert.Equal(t, "GET", cfg.Request.Method)
				assert.Equal(t, 5, cfg.Load.VUs)
				assert.Equal(t, "10s", cfg.Load.Duration)
				assert.Empty(t, cfg.Load.Stages)
				assert.Nil(t, cfg.Load.Pacing)
			},
		},
		{
			name:  "stages replace vus and duration",
			flags: runFlags{url: "http://localhost", method: "GET", vus: 5, duration: "10s", stages: "5s:2,5s:0"},
			check: func(t *testing.T, cfg *config.TestConfig) {
				assert.Zero(t, cfg.Load.VUs)
				assert.Empty(t, cfg.Load.Duration)
				assert.Len(t, cfg.Load.Stages, 2)
			},
		},
		{
			name:  "constant pause",
			flags: runFlags{url: "http://localhost", method: "GET", vus: 1, duration: "1s", pause: "1s"},
			check: func(t *testing.T, cfg *config.TestConfig) {
				require.NotNil(t, cfg.Load.Pacing)
				assert.Equal(t, "constant", cfg.Load.Pacing.Type)
				assert.Equal(t, "1s", cfg.Load.Pacing.Duration)
			},
		},
		{
			name:  "random pause",
			flags: runFlags{url: "http://localhost", method: "GET", vus: 1, duration: "1s", pause: "100ms", pauseMax: "1s"},
			check: func(t *testing.T, cfg *config.TestConfig) {
				require.NotNil(t, cfg.Load.Pacing)
				assert.Equal(t, "random", cfg.Load.Pacing.Type)
				assert.Equal(t, "100ms", cfg.Load.Pacing.Min)
				assert.Equal(t, "1s", cfg.Load.Pacing.Max)
			},
		},
		{
			name:    "pause max without pause",
			flags:   runFlags{url: "http://localhost", method: "GET", pauseMax: "1s"},
			wantErr: true,
		},
		{
			name: "checks",
			flags: runFlags{
				url: "http://localhost/deals", method: "POST", vus: 1, duration: "1s",
				checkStatus: []int{201, 409}, checkBody: "Deal",
				headers: []string{"Content-Type: application/json"},
			},
			check: func(t *testing.T, cfg *config.TestConfig) {
				require.Len(t, cfg.Request.Checks, 2)
				assert.Equal(t, "status is 201 or 409", cfg.Request.Checks[0].Name)
				assert.Equal(t, workload.CheckStatus, cfg.Request.Checks[0].Type)
				assert.Equal(t, `body contains "Deal"`, cfg.Request.Checks[1].Name)
				assert.Equal(t, "Deal", cfg.Request.Checks[1].Contains)
				assert.Equal(t, "application/json", cfg.Request.Headers["Content-Type"])
			},
		},
		{
			name:    "bad stages",
			flags:   runFlags{url: "http://localhost", method: "GET", stages: "nope"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.flags.buildConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			config.ApplyDefaults(cfg)
			require.NoError(t, cfg.Validate())
			tt.check(t, cfg)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, exitCode(nil))
	assert.Equal(t, ExitThresholdsFailed, exitCode(ErrThresholdsFailed))
	assert.Equal(t, ExitThresholdsFailed, exitCode(fmt.Errorf("wrapped: %w", ErrThresholdsFailed)))
	assert.Equal(t, ExitError, exitCode(errors.New("boom")))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger("info", "json", &buf)
	require.NoError(t, err)
	logger.Info("hello")
	logger.Debug("hidden")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	logger, err = newLogger("debug", "console", &buf)
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "DEBUG")

	_, err = newLogger("loud", "json", &buf)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", &buf)
	assert.Error(t, err)
}

func demoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(demo.NewServer(demo.NewStore(), nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecute_QuickRun(t *testing.T) {
	srv := demoServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "report.json")
	htmlOut := filepath.Join(dir, "report.html")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{
		"run",
		"--url", srv.URL + "/deals",
		"-X", "POST",
		"-H", "Content-Type: application/json",
		"-d", `{"dealId":"D-{{randInt 50}}","fromCurrency":"USD","toCurrency":"EUR","amount":100}`,
		"--vus", "2",
		"--duration", "300ms",
		"--success-status", "201,409",
		"--check-status", "201,409",
		"--progress-interval", "100ms",
		"--no-color",
		"--json", out,
		"--html", htmlOut,
	}, &stdout, &stderr)

	require.Equal(t, ExitOK, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "Quick Test")
	assert.Contains(t, stdout.String(), "status is 201 or 409")

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var rep struct {
		Passed   bool `json:"passed"`
		Snapshot struct {
			TotalIterations int64 `json:"totalIterations"`
			Failures        int64 `json:"failures"`
		} `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(data, &rep))
	assert.True(t, rep.Passed)
	assert.Positive(t, rep.Snapshot.TotalIterations)
	assert.Zero(t, rep.Snapshot.Failures)

	html, err := os.ReadFile(htmlOut)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Quick Test - Load Test Report")
}

func TestExecute_ThresholdFailure(t *testing.T) {
	srv := demoServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")

	yaml := fmt.Sprintf(`name: Threshold Test
settings:
  baseUrl: %s
load:
  vus: 1
  duration: 200ms
request:
  url: "{{baseUrl}}/health"
thresholds:
  iterations: ["count > 1000000"]
  iterations_failed: ["rate < 0.5"]
`, srv.URL)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"run", "-c", path, "-q"}, &stdout, &stderr)

	assert.Equal(t, ExitThresholdsFailed, code)
	assert.Contains(t, stdout.String(), "FAILED")
	assert.Empty(t, stderr.String())
}

func TestExecute_Errors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("load:\n  vus: 1\nrequest:\n  url: http://localhost\n"), 0o644))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no target", []string{"run"}, "either --config or --url is required"},
		{"missing file", []string{"run", "-c", filepath.Join(dir, "nope.yaml")}, "failed to read config file"},
		{"invalid config", []string{"run", "-c", invalid}, "duration or stages is required"},
		{"config and url", []string{"run", "-c", invalid, "--url", "http://localhost"}, "none of the others"},
		{"bad log level", []string{"--log-level", "loud", "run", "--url", "http://localhost"}, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := execute(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, ExitError, code)
			assert.Contains(t, stderr.String(), tt.wantErr)
		})
	}
}

func TestServeDemo(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serveDemo(ctx, ln, nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("demo server did not shut down")
	}
}
