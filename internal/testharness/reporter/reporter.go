// Package reporter provides test result formatting and output.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
)

// Reporter formats and outputs test results.
type Reporter interface {
	// ReportSuite reports results for a test suite.
	ReportSuite(result *engine.SuiteResult)

	// ReportRun reports the result of a single case run.
	ReportRun(result *engine.RunResult)
}

// Output formats accepted by New.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatJUnit = "junit"
)

// New returns the reporter for format.
func New(format string, w io.Writer, verbose bool) (Reporter, error) {
	switch format {
	case "", FormatText:
		return NewTextReporter(w, verbose), nil
	case FormatJSON:
		return NewJSONReporter(w, true), nil
	case FormatJUnit:
		return NewJUnitReporter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func statusLabel(s loader.Status) string {
	switch s {
	case loader.StatusSuccess:
		return "PASS"
	case loader.StatusPartial:
		return "PART"
	default:
		return "FAIL"
	}
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{
		writer:  w,
		verbose: verbose,
	}
}

// ReportSuiteStart prints the suite header before runs are streamed.
func (r *TextReporter) ReportSuiteStart(name string) {
	fmt.Fprintf(r.writer, "\n=== Suite: %s ===\n\n", name)
}

// ReportSuite reports suite results in text format.
func (r *TextReporter) ReportSuite(result *engine.SuiteResult) {
	fmt.Fprintf(r.writer, "\n=== Suite: %s ===\n", result.SuiteName)
	fmt.Fprintf(r.writer, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.writer, "\n")

	for _, rr := range result.Results {
		r.ReportRun(rr)
	}

	r.ReportSummary(result)
}

// slowestCount is the number of runs listed in the slowest section.
const slowestCount = 10

// ReportSummary prints cases that could not run, the suite totals and,
// for three or more runs, the slowest runs.
func (r *TextReporter) ReportSummary(result *engine.SuiteResult) {
	for _, id := range sortedKeys(result.Errors) {
		fmt.Fprintf(r.writer, "[ERR ] %s: %v\n", id, result.Errors[id])
	}

	fmt.Fprintf(r.writer, "\n--- Summary ---\n")
	fmt.Fprintf(r.writer, "Total:   %d\n", len(result.Results)+len(result.Errors))
	fmt.Fprintf(r.writer, "Passed:  %d\n", result.PassCount)
	fmt.Fprintf(r.writer, "Partial: %d\n", result.PartialCount)
	fmt.Fprintf(r.writer, "Failed:  %d\n", result.FailCount)

	total := result.PassCount + result.PartialCount + result.FailCount
	if total > 0 {
		rate := float64(result.PassCount) / float64(total) * 100
		fmt.Fprintf(r.writer, "Pass Rate: %.1f%%\n", rate)
	}

	if len(result.Results) < 3 {
		return
	}
	runs := append([]*engine.RunResult(nil), result.Results...)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Duration > runs[j].Duration })
	if len(runs) > slowestCount {
		runs = runs[:slowestCount]
	}
	fmt.Fprintf(r.writer, "\n--- Slowest Tests ---\n")
	for i, rr := range runs {
		fmt.Fprintf(r.writer, "%2d. %s %s\n", i+1, rr.CaseID, rr.Duration.Round(time.Millisecond))
	}
}

// ReportRun reports a single run in text format.
func (r *TextReporter) ReportRun(result *engine.RunResult) {
	fmt.Fprintf(r.writer, "[%s] %s - %s (%s) %d/%d passed\n",
		statusLabel(result.Status), result.CaseID, result.CaseName,
		result.Duration.Round(time.Millisecond), result.Passed, result.Total)

	if result.Aborted {
		fmt.Fprintf(r.writer, "       Aborted: %s\n", result.AbortReason)
	}
	if result.Failed > 0 {
		fmt.Fprintf(r.writer, "       Failed: %d (warnings %d, errors %d)\n", result.Failed, result.Warnings, result.Errors)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(r.writer, "       %s/%s [%s]: %s\n", f.CaseID, f.CommandID, f.Kind, f.Error)
	}

	if !r.verbose {
		return
	}
	for _, sr := range result.Steps {
		stepStatus := "PASS"
		if !sr.Passed {
			stepStatus = "FAIL"
		}
		fmt.Fprintf(r.writer, "    [%s] %s/%s #%d: %s (%s, %d attempt(s))\n",
			stepStatus, sr.CaseID, sr.CommandID, sr.CommandIndex, sr.Sent,
			sr.Duration.Round(time.Millisecond), sr.Attempts)
		if sr.Response != "" {
			fmt.Fprintf(r.writer, "           <- %s\n", sr.Response)
		}
		if sr.Error != "" {
			fmt.Fprintf(r.writer, "           Error: %s\n", sr.Error)
		}
	}
	if len(result.Variables) > 0 {
		fmt.Fprintf(r.writer, "    Variables:\n")
		for _, name := range sortedKeys(result.Variables) {
			fmt.Fprintf(r.writer, "      %s = %s\n", name, result.Variables[name].Value)
		}
	}
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: w,
		pretty: pretty,
	}
}

// JSONSuiteResult is the JSON representation of suite results.
type JSONSuiteResult struct {
	SuiteName string              `json:"suite_name"`
	Duration  string              `json:"duration"`
	Total     int                 `json:"total"`
	Passed    int                 `json:"passed"`
	Partial   int                 `json:"partial"`
	Failed    int                 `json:"failed"`
	PassRate  float64             `json:"pass_rate"`
	Runs      []*engine.RunResult `json:"runs"`
	Errors    map[string]string   `json:"errors,omitempty"`
}

// ReportSuite reports suite results in JSON format.
func (r *JSONReporter) ReportSuite(result *engine.SuiteResult) {
	total := result.PassCount + result.PartialCount + result.FailCount
	var passRate float64
	if total > 0 {
		passRate = float64(result.PassCount) / float64(total) * 100
	}

	jr := JSONSuiteResult{
		SuiteName: result.SuiteName,
		Duration:  result.Duration.Round(time.Millisecond).String(),
		Total:     len(result.Results) + len(result.Errors),
		Passed:    result.PassCount,
		Partial:   result.PartialCount,
		Failed:    result.FailCount,
		PassRate:  passRate,
		Runs:      result.Results,
	}
	if jr.Runs == nil {
		jr.Runs = []*engine.RunResult{}
	}
	if len(result.Errors) > 0 {
		jr.Errors = make(map[string]string, len(result.Errors))
		for id, err := range result.Errors {
			jr.Errors[id] = err.Error()
		}
	}

	r.writeJSON(jr)
}

// ReportRun reports a single run in JSON format.
func (r *JSONReporter) ReportRun(result *engine.RunResult) {
	r.writeJSON(result)
}

func (r *JSONReporter) writeJSON(v any) {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`, err)
		return
	}

	fmt.Fprintln(r.writer, string(data))
}

// JUnitReporter outputs JUnit XML format for CI integration.
type JUnitReporter struct {
	writer io.Writer
}

// NewJUnitReporter creates a new JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

// ReportSuite reports suite results in JUnit XML format. Partial runs
// count as failures; cases that could not run are errors.
func (r *JUnitReporter) ReportSuite(result *engine.SuiteResult) {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n")

	failures := 0
	for _, rr := range result.Results {
		if rr.Status != loader.StatusSuccess {
			failures++
		}
	}

	fmt.Fprintf(&b, `<testsuite name="%s" tests="%d" failures="%d" errors="%d" time="%.3f">`,
		escapeXML(result.SuiteName),
		len(result.Results)+len(result.Errors),
		failures,
		len(result.Errors),
		result.Duration.Seconds())
	b.WriteString("\n")

	for _, rr := range result.Results {
		fmt.Fprintf(&b, `  <testcase name="%s" classname="%s" time="%.3f">`,
			escapeXML(rr.CaseName),
			escapeXML(rr.CaseID),
			rr.Duration.Seconds())
		b.WriteString("\n")

		if rr.Status != loader.StatusSuccess {
			msg := fmt.Sprintf("%s: %d of %d steps failed", rr.Status, rr.Failed, rr.Total)
			if rr.Aborted {
				msg += " (" + rr.AbortReason + ")"
			}
			fmt.Fprintf(&b, `    <failure message="%s">`, escapeXML(msg))
			b.WriteString("\n")

			b.WriteString("      <![CDATA[")
			for _, f := range rr.Failures {
				fmt.Fprintf(&b, "%s/%s #%d (%s): %s\n", f.CaseID, f.CommandID, f.CommandIndex, f.CommandText, f.Error)
			}
			b.WriteString("]]>\n")
			b.WriteString("    </failure>\n")
		}

		b.WriteString("  </testcase>\n")
	}

	for _, id := range sortedKeys(result.Errors) {
		fmt.Fprintf(&b, `  <testcase name="%s" classname="%s" time="0.000">`, escapeXML(id), escapeXML(id))
		b.WriteString("\n")
		fmt.Fprintf(&b, `    <error message="%s"/>`, escapeXML(result.Errors[id].Error()))
		b.WriteString("\n  </testcase>\n")
	}

	b.WriteString("</testsuite>\n")

	fmt.Fprint(r.writer, b.String())
}

// ReportRun reports a single run in JUnit format (wraps in minimal testsuite).
func (r *JUnitReporter) ReportRun(result *engine.RunResult) {
	suite := &engine.SuiteResult{
		SuiteName: result.CaseID,
		Duration:  result.Duration,
	}
	suite.Add(result)
	r.ReportSuite(suite)
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
