package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/atcase/atcase-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	StepsByVerdict    map[log.Verdict]int
	Connections       map[string]*ConnectionStats
	Runs              map[string]*CaseRunStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Remote    string
	BytesOut  int
	BytesIn   int
}

// CaseRunStats holds statistics for a single engine run.
type CaseRunStats struct {
	CaseID    string
	FirstSeen time.Time
	LastSeen  time.Time
	Passed    int
	Failed    int
	Jumps     int
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		StepsByVerdict:    make(map[log.Verdict]int),
		Connections:       make(map[string]*ConnectionStats),
		Runs:              make(map[string]*CaseRunStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID != "" {
		conn, ok := s.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
		if event.RemoteAddr != "" && conn.Remote == "" {
			conn.Remote = event.RemoteAddr
		}
		if event.Frame != nil {
			if event.Direction == log.DirectionOut {
				conn.BytesOut += event.Frame.Size
			} else {
				conn.BytesIn += event.Frame.Size
			}
		}
	}

	if event.RunID != "" {
		run, ok := s.Runs[event.RunID]
		if !ok {
			run = &CaseRunStats{CaseID: event.CaseID, FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Runs[event.RunID] = run
		}
		if event.Timestamp.After(run.LastSeen) {
			run.LastSeen = event.Timestamp
		}
		if event.Step != nil {
			switch event.Step.Verdict {
			case log.VerdictPass:
				run.Passed++
			case log.VerdictFail:
				run.Failed++
			case log.VerdictJump:
				run.Jumps++
			}
		}
	}

	if event.Step != nil {
		s.StepsByVerdict[event.Step.Verdict]++
	}
	if event.Error != nil {
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== AT Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", formatDuration(stats.TimeRange.End.Sub(stats.TimeRange.Start)))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerLine, log.LayerEngine} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryStep, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.StepsByVerdict) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Steps by Verdict:")
		for _, v := range []log.Verdict{log.VerdictPass, log.VerdictFail, log.VerdictSkip, log.VerdictArm, log.VerdictJump} {
			if count := stats.StepsByVerdict[v]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", v.String()+":", count)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		ids := make([]string, 0, len(stats.Connections))
		for id := range stats.Connections {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Connections[ids[i]].FirstSeen.Before(stats.Connections[ids[j]].FirstSeen)
		})

		fmt.Fprintln(w)
		for _, id := range ids {
			c := stats.Connections[id]
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(id), c.Events,
				c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
			if c.Remote != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.Remote)
			}
			if c.BytesOut > 0 || c.BytesIn > 0 {
				fmt.Fprintf(w, "           Bytes: %d out, %d in\n", c.BytesOut, c.BytesIn)
			}
		}
	}

	if len(stats.Runs) > 0 {
		ids := make([]string, 0, len(stats.Runs))
		for id := range stats.Runs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Runs[ids[i]].FirstSeen.Before(stats.Runs[ids[j]].FirstSeen)
		})

		fmt.Fprintln(w)
		fmt.Fprintf(w, "Runs: %d\n", len(stats.Runs))
		fmt.Fprintln(w)
		for _, id := range ids {
			r := stats.Runs[id]
			fmt.Fprintf(w, "  [%s] %s: %d passed, %d failed, %d jumps, duration %s\n",
				shortenConnID(id), r.CaseID, r.Passed, r.Failed, r.Jumps,
				r.LastSeen.Sub(r.FirstSeen).Round(time.Millisecond))
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
