package reporter_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/internal/testharness/reporter"
)

func passedRun(id, name string) *engine.RunResult {
	return &engine.RunResult{
		RunID:    "run-" + id,
		CaseID:   id,
		CaseName: name,
		Status:   loader.StatusSuccess,
		Duration: 100 * time.Millisecond,
		Total:    2,
		Passed:   2,
		Steps: []engine.StepResult{
			{CaseID: id, CommandID: "cmd_1", Kind: loader.KindExecution, Passed: true, Attempts: 1, Sent: "AT", Response: "OK", Duration: 20 * time.Millisecond},
			{CaseID: id, CommandID: "cmd_2", CommandIndex: 1, Kind: loader.KindExecution, Passed: true, Attempts: 1, Sent: "AT+CSQ", Response: "+CSQ: 23,99", Duration: 30 * time.Millisecond},
		},
		Variables: map[string]engine.Variable{
			"rssi": {Value: "23"},
		},
	}
}

func partialRun(id, name string) *engine.RunResult {
	return &engine.RunResult{
		RunID:    "run-" + id,
		CaseID:   id,
		CaseName: name,
		Status:   loader.StatusPartial,
		Duration: 1200 * time.Millisecond,
		Total:    2,
		Passed:   1,
		Failed:   1,
		Errors:   1,
		Failures: []engine.FailureRecord{
			{CaseID: id, CommandID: "cmd_2", CommandIndex: 1, CommandText: "AT+WAIT", Error: "timeout waiting for OK", Kind: engine.ErrKindAssertion},
		},
		Steps: []engine.StepResult{
			{CaseID: id, CommandID: "cmd_1", Passed: true, Attempts: 1, Sent: "AT"},
			{CaseID: id, CommandID: "cmd_2", CommandIndex: 1, Passed: false, Attempts: 2, Sent: "AT+WAIT", Error: "timeout waiting for OK"},
		},
	}
}

func failedRun(id, name string) *engine.RunResult {
	return &engine.RunResult{
		RunID:       "run-" + id,
		CaseID:      id,
		CaseName:    name,
		Status:      loader.StatusFailed,
		Duration:    50 * time.Millisecond,
		Total:       1,
		Failed:      1,
		Errors:      1,
		Aborted:     true,
		AbortReason: "stopped after failure",
		Failures: []engine.FailureRecord{
			{CaseID: id, CommandID: "cmd_1", CommandText: "AT+CME", Error: "failure response: +CME ERROR: 10", Kind: engine.ErrKindAssertion},
		},
	}
}

func createSuiteResult() *engine.SuiteResult {
	s := &engine.SuiteResult{
		SuiteName: "Modem Suite",
		Duration:  1500 * time.Millisecond,
		Errors:    map[string]error{"TC-004": errors.New("no transport")},
	}
	s.Add(passedRun("TC-001", "Firmware version"))
	s.Add(partialRun("TC-002", "Signal quality"))
	s.Add(failedRun("TC-003", "CME errors"))
	return s
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	for _, tt := range []struct {
		format string
		want   any
	}{
		{"", &reporter.TextReporter{}},
		{reporter.FormatText, &reporter.TextReporter{}},
		{reporter.FormatJSON, &reporter.JSONReporter{}},
		{reporter.FormatJUnit, &reporter.JUnitReporter{}},
	} {
		r, err := reporter.New(tt.format, &buf, false)
		require.NoError(t, err, tt.format)
		assert.IsType(t, tt.want, r, tt.format)
	}

	_, err := reporter.New("yaml", &buf, false)
	assert.Error(t, err)
}

func TestTextReporterSuite(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewTextReporter(&buf, false).ReportSuite(createSuiteResult())
	out := buf.String()

	assert.Contains(t, out, "=== Suite: Modem Suite ===")
	assert.Contains(t, out, "[PASS] TC-001 - Firmware version")
	assert.Contains(t, out, "[PART] TC-002 - Signal quality")
	assert.Contains(t, out, "[FAIL] TC-003 - CME errors")
	assert.Contains(t, out, "Aborted: stopped after failure")
	assert.Contains(t, out, "TC-002/cmd_2 [assertion]: timeout waiting for OK")
	assert.Contains(t, out, "[ERR ] TC-004: no transport")
	assert.Contains(t, out, "Total:   4")
	assert.Contains(t, out, "Passed:  1")
	assert.Contains(t, out, "Partial: 1")
	assert.Contains(t, out, "Failed:  1")
	assert.Contains(t, out, "Pass Rate: 33.3%")

	assert.NotContains(t, out, "<- OK", "steps are only listed in verbose mode")
}

func TestTextReporterStreamedSuite(t *testing.T) {
	var buf bytes.Buffer
	r := reporter.NewTextReporter(&buf, false)
	suite := createSuiteResult()

	r.ReportSuiteStart(suite.SuiteName)
	for _, rr := range suite.Results {
		r.ReportRun(rr)
	}
	r.ReportSummary(suite)

	out := buf.String()
	header := strings.Index(out, "=== Suite: Modem Suite ===")
	require.GreaterOrEqual(t, header, 0, out)
	assert.Less(t, header, strings.Index(out, "TC-001"))
	assert.Less(t, strings.Index(out, "TC-001"), strings.Index(out, "--- Summary ---"))
}

func TestTextReporterVerbose(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewTextReporter(&buf, true).ReportRun(passedRun("TC-001", "Firmware version"))
	out := buf.String()

	assert.Contains(t, out, "[PASS] TC-001/cmd_2 #1: AT+CSQ")
	assert.Contains(t, out, "<- +CSQ: 23,99")
	assert.Contains(t, out, "Variables:")
	assert.Contains(t, out, "rssi = 23")

	buf.Reset()
	reporter.NewTextReporter(&buf, true).ReportRun(partialRun("TC-002", "Signal quality"))
	assert.Contains(t, buf.String(), "[FAIL] TC-002/cmd_2 #1: AT+WAIT")
	assert.Contains(t, buf.String(), "Error: timeout waiting for OK")
}

func TestTextReporterSlowestTests(t *testing.T) {
	t.Run("shown for three or more runs", func(t *testing.T) {
		var buf bytes.Buffer
		reporter.NewTextReporter(&buf, false).ReportSummary(createSuiteResult())
		out := buf.String()

		require.Contains(t, out, "--- Slowest Tests ---")
		section := out[strings.Index(out, "--- Slowest Tests ---"):]
		first := strings.Index(section, "TC-002")
		second := strings.Index(section, "TC-001")
		third := strings.Index(section, "TC-003")
		assert.True(t, first >= 0 && first < second && second < third, "runs are ordered by duration:\n%s", section)
	})

	t.Run("hidden for fewer than three runs", func(t *testing.T) {
		s := &engine.SuiteResult{SuiteName: "small"}
		s.Add(passedRun("TC-001", "one"))
		s.Add(passedRun("TC-002", "two"))

		var buf bytes.Buffer
		reporter.NewTextReporter(&buf, false).ReportSummary(s)
		assert.NotContains(t, buf.String(), "Slowest")
	})

	t.Run("capped at ten", func(t *testing.T) {
		s := &engine.SuiteResult{SuiteName: "large"}
		for i := range 15 {
			r := passedRun(fmt.Sprintf("TC-%03d", i), "run")
			r.Duration = time.Duration(i+1) * time.Millisecond
			s.Add(r)
		}

		var buf bytes.Buffer
		reporter.NewTextReporter(&buf, false).ReportSummary(s)
		section := buf.String()[strings.Index(buf.String(), "--- Slowest Tests ---"):]
		assert.Contains(t, section, "TC-014")
		assert.Contains(t, section, "10. TC-005")
		assert.NotContains(t, section, "TC-004")
	})
}

func TestJSONReporterSuite(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJSONReporter(&buf, false).ReportSuite(createSuiteResult())

	var got reporter.JSONSuiteResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "Modem Suite", got.SuiteName)
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, 1, got.Passed)
	assert.Equal(t, 1, got.Partial)
	assert.Equal(t, 1, got.Failed)
	assert.InDelta(t, 33.3, got.PassRate, 0.1)
	require.Len(t, got.Runs, 3)
	assert.Equal(t, loader.StatusPartial, got.Runs[1].Status)
	assert.Equal(t, engine.ErrKindAssertion, got.Runs[1].Failures[0].Kind)
	assert.Equal(t, "no transport", got.Errors["TC-004"])
}

func TestJSONReporterEmptySuite(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJSONReporter(&buf, false).ReportSuite(&engine.SuiteResult{SuiteName: "empty"})
	assert.Contains(t, buf.String(), `"runs":[]`)
	assert.NotContains(t, buf.String(), `"errors"`)
}

func TestJSONReporterRun(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJSONReporter(&buf, true).ReportRun(partialRun("TC-002", "Signal quality"))

	assert.Contains(t, buf.String(), "\n  ")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "TC-002", got["case_id"])
	assert.Equal(t, "partial", got["status"])
	assert.EqualValues(t, 1, got["passed"])
}

func TestJUnitReporterSuite(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJUnitReporter(&buf).ReportSuite(createSuiteResult())
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<testsuite name="Modem Suite" tests="4" failures="2" errors="1" time="1.500">`)
	assert.Contains(t, out, `<testcase name="Firmware version" classname="TC-001" time="0.100">`)
	assert.Contains(t, out, `<failure message="partial: 1 of 2 steps failed">`)
	assert.Contains(t, out, `<failure message="failed: 1 of 1 steps failed (stopped after failure)">`)
	assert.Contains(t, out, "TC-002/cmd_2 #1 (AT+WAIT): timeout waiting for OK")
	assert.Contains(t, out, `<error message="no transport"/>`)
	assert.Equal(t, 4, strings.Count(out, "</testcase>"))
	assert.True(t, strings.HasSuffix(out, "</testsuite>\n"))
}

func TestJUnitReporterRun(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJUnitReporter(&buf).ReportRun(passedRun("TC-001", "Firmware version"))
	out := buf.String()

	assert.Contains(t, out, `<testsuite name="TC-001" tests="1" failures="0" errors="0"`)
	assert.NotContains(t, out, "<failure")
}

func TestJUnitReporterEscapesXML(t *testing.T) {
	run := failedRun("TC-<1>", `Quote "this" & that`)

	var buf bytes.Buffer
	reporter.NewJUnitReporter(&buf).ReportRun(run)
	out := buf.String()

	assert.Contains(t, out, `name="Quote &quot;this&quot; &amp; that"`)
	assert.Contains(t, out, `classname="TC-&lt;1&gt;"`)
}
