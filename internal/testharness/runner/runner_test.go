package runner

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/internal/testharness/mock"
	"github.com/atcase/atcase-go/pkg/log"
)

const basicCase = `
id: TC-BASIC
name: Basic
tags: [smoke]
commands:
  - {id: c1, kind: execution, command: AT, validation: contains, expected: OK}
  - {id: c2, kind: execution, command: AT+CGMR, validation: contains, expected: VER}
`

const confirmCase = `
id: TC-CONFIRM
name: Confirm
tags: [manual]
commands:
  - id: reset
    kind: execution
    command: AT+CFUN=1,1
    validation: contains
    expected: OK
    requires_confirmation: true
    confirmation_prompt: Power cycle the module?
`

func testDevice() *mock.Device {
	return mock.NewDevice("dut",
		mock.Rule{Match: "AT+CGMR", Reply: []string{"VER 1.0"}},
		mock.Rule{Match: "AT", Reply: []string{"OK"}},
	)
}

func writeCases(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, doc := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	return dir
}

func testConfig(t *testing.T, device *mock.Device, paths ...string) (*Config, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Paths = paths
	cfg.Output = &out
	cfg.Transport = device
	cfg.Timeout = loader.Duration(300 * time.Millisecond)
	cfg.RetryDelay = loader.Duration(10 * time.Millisecond)
	return cfg, &out
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)

	def := engine.DefaultConfig()
	assert.Equal(t, 3, cfg.ConnectAttempts)
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.Equal(t, def.DefaultTimeout, cfg.Timeout.D())
	assert.Equal(t, def.DefaultListenTimeout, cfg.ListenTimeout.D())
	assert.Equal(t, def.DefaultRetryDelay, cfg.RetryDelay.D())
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
target: 192.168.1.20:2323
paths: [cases/]
tags: [smoke, sms]
select: [c1]
output: junit
timeout: 2s
failure_patterns: ["NO CARRIER"]
stop_on_first_failure: true
`))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20:2323", cfg.Target)
	assert.Equal(t, []string{"cases/"}, cfg.Paths)
	assert.Equal(t, []string{"smoke", "sms"}, cfg.Tags)
	assert.Equal(t, []string{"c1"}, cfg.Select)
	assert.Equal(t, "junit", cfg.OutputFormat)
	assert.Equal(t, 3, cfg.ConnectAttempts, "unset keys keep defaults")

	ec := cfg.engineConfig()
	assert.Equal(t, 2*time.Second, ec.DefaultTimeout)
	assert.Equal(t, []string{"NO CARRIER"}, ec.FailurePatterns)
	assert.True(t, ec.StopOnFirstFailure)
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("targte: localhost:23\n"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atcase.yaml")
	require.NoError(t, os.WriteFile(path, []byte("verbose: true\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunWritesReportHistoryAndCapture(t *testing.T) {
	device := testDevice()
	defer device.Close()

	dir := writeCases(t, map[string]string{"basic.yaml": basicCase})
	cfg, out := testConfig(t, device, dir)
	cfg.HistoryDB = filepath.Join(t.TempDir(), "history.db")
	cfg.CaptureLog = filepath.Join(t.TempDir(), "capture.cbor")

	var mu sync.Mutex
	var last *loader.TestCase
	cfg.OnTreeChange = func(tc *loader.TestCase) {
		mu.Lock()
		last = tc
		mu.Unlock()
	}

	r, err := New(cfg)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, loader.StatusSuccess, result.Results[0].Status)
	assert.Equal(t, 1, result.PassCount)

	assert.Contains(t, out.String(), "[PASS] TC-BASIC - Basic")
	assert.Contains(t, out.String(), "Pass Rate: 100.0%")
	assert.Equal(t, []string{"AT", "AT+CGMR"}, device.Received())

	runs, err := r.history.ListRuns(10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "TC-BASIC", runs[0].CaseID)
	assert.Equal(t, loader.StatusSuccess, runs[0].Status)

	mu.Lock()
	require.NotNil(t, last)
	assert.Equal(t, loader.StatusSuccess, last.Status)
	assert.False(t, last.IsRunning)
	mu.Unlock()

	require.NoError(t, r.Close())

	events, err := log.ReadAll(cfg.CaptureLog, log.Filter{CaseID: "TC-BASIC"})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestRunJSONOutput(t *testing.T) {
	device := testDevice()
	defer device.Close()

	dir := writeCases(t, map[string]string{"basic.yaml": basicCase})
	cfg, out := testConfig(t, device, dir)
	cfg.OutputFormat = "json"

	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"suite_name": "AT Test Suite"`)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunTraceMirrorsCapture(t *testing.T) {
	device := testDevice()
	defer device.Close()

	dir := writeCases(t, map[string]string{"basic.yaml": basicCase})
	cfg, _ := testConfig(t, device, dir)
	var logs syncBuffer
	cfg.Logger = slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg.Trace = true

	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"msg":"capture"`)
	assert.Contains(t, logs.String(), `"case":"TC-BASIC"`)
}

func TestRunPrompterDeclines(t *testing.T) {
	device := testDevice()
	defer device.Close()

	dir := writeCases(t, map[string]string{"confirm.yaml": confirmCase})
	cfg, _ := testConfig(t, device, dir)

	var prompts []string
	cfg.Prompter = PrompterFunc(func(_ context.Context, prompt string) (bool, error) {
		prompts = append(prompts, prompt)
		return false, nil
	})

	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Close()

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	assert.Equal(t, loader.StatusFailed, result.Results[0].Status)
	assert.Equal(t, []string{"Power cycle the module?"}, prompts)
	assert.Empty(t, device.Received())
}

func TestRunAutoConfirm(t *testing.T) {
	device := testDevice()
	defer device.Close()

	dir := writeCases(t, map[string]string{"confirm.yaml": confirmCase})
	cfg, _ := testConfig(t, device, dir)
	cfg.AutoConfirm = true
	cfg.Prompter = PrompterFunc(func(context.Context, string) (bool, error) {
		t.Error("prompter must not be asked")
		return false, nil
	})

	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Close()

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, loader.StatusSuccess, result.Results[0].Status)
	assert.Equal(t, []string{"AT+CFUN=1,1"}, device.Received())
}

func TestLoadCasesFilters(t *testing.T) {
	dir := writeCases(t, map[string]string{
		"basic.yaml":   basicCase,
		"confirm.yaml": confirmCase,
	})

	cfg, _ := testConfig(t, nil, dir)
	cfg.Tags = []string{"smoke"}
	r, err := New(cfg)
	require.NoError(t, err)

	cases, err := r.LoadCases()
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "TC-BASIC", cases[0].ID)

	cfg.Tags = nil
	cfg.ExcludeTags = []string{"smoke", "manual"}
	_, err = r.LoadCases()
	assert.ErrorIs(t, err, ErrNoCases)
}

func TestLoadCasesSelect(t *testing.T) {
	dir := writeCases(t, map[string]string{
		"basic.yaml":   basicCase,
		"confirm.yaml": confirmCase,
	})

	cfg, _ := testConfig(t, nil, dir)
	cfg.Select = []string{"c2"}
	r, err := New(cfg)
	require.NoError(t, err)

	cases, err := r.LoadCases()
	require.NoError(t, err)
	for _, tc := range cases {
		if tc.ID == "TC-BASIC" {
			assert.False(t, tc.Commands[0].Selected)
			assert.True(t, tc.Commands[1].Selected)
		}
	}

	cfg.Select = []string{"c2", "nope"}
	_, err = r.LoadCases()
	assert.ErrorIs(t, err, ErrUnknownSelect)
	assert.Contains(t, err.Error(), "nope")
}

func TestLoadCasesRejectsInvalid(t *testing.T) {
	dir := writeCases(t, map[string]string{"bad.yaml": `
id: TC-BAD
failure_strategy: sideways
commands:
  - {id: c1, kind: execution, command: AT, validation: contains, expected: OK}
`})

	cfg, _ := testConfig(t, nil, dir)
	r, err := New(cfg)
	require.NoError(t, err)

	_, err = r.LoadCases()
	assert.ErrorIs(t, err, ErrInvalidCases)
	assert.Contains(t, err.Error(), "sideways")
}

func TestConnectWithoutTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = &bytes.Buffer{}
	r, err := New(cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Connect(context.Background()), ErrNoTarget)
	assert.Nil(t, r.Engine())
}

func TestRunOverTCP(t *testing.T) {
	device := testDevice()
	defer device.Close()

	server := mock.NewServer(device, "127.0.0.1:0")
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	dir := writeCases(t, map[string]string{"basic.yaml": basicCase})
	cfg, out := testConfig(t, nil, dir)
	cfg.Transport = nil
	cfg.Target = server.Addr().String()

	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Close()

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, loader.StatusSuccess, result.Results[0].Status)
	header := strings.Index(out.String(), "=== Suite: AT Test Suite ("+cfg.Target+") ===")
	require.GreaterOrEqual(t, header, 0, out.String())
	assert.Less(t, header, strings.Index(out.String(), "TC-BASIC"), "suite header precedes streamed runs")
}

func TestTreeHostTrackResetsRuntime(t *testing.T) {
	tc, err := loader.ParseTestCase([]byte(basicCase))
	require.NoError(t, err)

	h := NewTreeHost(nil, nil, false)
	var calls int
	h.OnChange(func(*loader.TestCase) { calls++ })

	h.Track(context.Background(), tc)
	require.NotNil(t, h.Tree())
	assert.NotSame(t, tc, h.Tree())

	h.OnCaseUpdate("TC-BASIC", engine.CaseUpdate{Status: loader.StatusPartial, IsRunning: true})
	assert.Equal(t, loader.StatusPartial, h.Tree().Status)
	assert.True(t, h.Tree().IsRunning)
	assert.Equal(t, loader.StatusPending, tc.Status, "the loaded case is never mutated")
	assert.Equal(t, 2, calls)
}
