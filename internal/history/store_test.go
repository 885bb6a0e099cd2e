package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atcase/atcase-go/internal/testharness/engine"
	"github.com/atcase/atcase-go/internal/testharness/loader"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(id string, start time.Time) *engine.RunResult {
	return &engine.RunResult{
		RunID:      id,
		CaseID:     "TC-CSQ",
		CaseName:   "Signal quality",
		Status:     loader.StatusPartial,
		StartTime:  start,
		EndTime:    start.Add(1500 * time.Millisecond),
		Duration:   1500 * time.Millisecond,
		Iterations: 1,
		Total:      3,
		Passed:     2,
		Failed:     1,
		Errors:     1,
		Failures: []engine.FailureRecord{
			{
				CaseID:       "TC-CSQ",
				CommandID:    "cmd_2",
				CommandIndex: 1,
				CommandText:  "AT+CSQ",
				Error:        "timeout waiting for OK",
				Kind:         engine.ErrKindAssertion,
				Severity:     loader.SeverityError,
				Timestamp:    start.Add(time.Second),
			},
		},
		Variables: map[string]engine.Variable{"rssi": {Value: "23"}},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(sampleRun("run-1", start)))

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "TC-CSQ", got.CaseID)
	assert.Equal(t, "Signal quality", got.CaseName)
	assert.Equal(t, loader.StatusPartial, got.Status)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Passed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 1, got.Errors)
	assert.False(t, got.Aborted)
	assert.True(t, got.StartedAt.Equal(start))
}

func TestGetRunNotFound(t *testing.T) {
	store := newStore(t)

	got, err := store.GetRun("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	res, err := store.GetResult("missing")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestGetResult(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveRun(sampleRun("run-1", time.Now())))

	res, err := store.GetResult("run-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "23", res.Variables["rssi"].Value)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, engine.ErrKindAssertion, res.Failures[0].Kind)
}

func TestFailures(t *testing.T) {
	store := newStore(t)
	r := sampleRun("run-1", time.Now())
	r.Failures = append(r.Failures, engine.FailureRecord{
		CaseID: "TC-CSQ", CommandID: "urc_1", CommandIndex: 2,
		Error: "jump target not found", Kind: engine.ErrKindConfiguration,
	})
	require.NoError(t, store.SaveRun(r))

	failures, err := store.Failures("run-1")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "cmd_2", failures[0].CommandID)
	assert.Equal(t, loader.SeverityError, failures[0].Severity)
	assert.Equal(t, engine.ErrKindConfiguration, failures[1].Kind)
	assert.Equal(t, 2, failures[1].CommandIndex)

	none, err := store.Failures("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveRunReplaces(t *testing.T) {
	store := newStore(t)
	r := sampleRun("run-1", time.Now())
	require.NoError(t, store.SaveRun(r))

	r.Status = loader.StatusSuccess
	r.Failures = nil
	require.NoError(t, store.SaveRun(r))

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, loader.StatusSuccess, got.Status)

	failures, err := store.Failures("run-1")
	require.NoError(t, err)
	assert.Empty(t, failures)

	n, err := store.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveRunRequiresID(t *testing.T) {
	store := newStore(t)
	assert.Error(t, store.SaveRun(&engine.RunResult{CaseID: "TC"}))
}

func TestListRuns(t *testing.T) {
	store := newStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, store.SaveRun(sampleRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := store.ListRuns(0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-1", runs[2].ID)

	page, err := store.ListRuns(1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "run-2", page[0].ID)
}

func TestDeleteRun(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveRun(sampleRun("run-1", time.Now())))
	require.NoError(t, store.DeleteRun("run-1"))

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	failures, err := store.Failures("run-1")
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(sampleRun("run-1", time.Now())))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
