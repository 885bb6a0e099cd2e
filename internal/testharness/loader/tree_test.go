package loader_test

import (
	"testing"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *loader.TestCase {
	return &loader.TestCase{
		ID: "root",
		Commands: []*loader.Command{
			{ID: "c1", Kind: loader.KindExecution, Command: "AT"},
			{ID: "c2", Kind: loader.KindExecution, Command: "ATI"},
		},
		SubCases: []*loader.TestCase{
			{
				ID:       "sub-a",
				Commands: []*loader.Command{{ID: "a1", Kind: loader.KindExecution, Command: "AT+CGMR"}},
				SubCases: []*loader.TestCase{
					{ID: "sub-a-1", Commands: []*loader.Command{{ID: "deep", Kind: loader.KindExecution, Command: "AT+CPIN?"}}},
				},
			},
			{
				ID:       "sub-b",
				Commands: []*loader.Command{{ID: "b1", Kind: loader.KindExecution, Command: "AT+COPS?"}},
			},
		},
	}
}

func TestFindCommandDepthFirst(t *testing.T) {
	root := sampleTree()

	owner, idx, ok := loader.FindCommand(root, "deep")
	require.True(t, ok)
	assert.Equal(t, "sub-a-1", owner.ID)
	assert.Equal(t, 0, idx)

	owner, idx, ok = loader.FindCommand(root, "c2")
	require.True(t, ok)
	assert.Equal(t, "root", owner.ID)
	assert.Equal(t, 1, idx)

	// search is limited to the given subtree
	_, _, ok = loader.FindCommand(root.SubCases[0], "b1")
	assert.False(t, ok)
}

func TestFindCaseAndCount(t *testing.T) {
	root := sampleTree()
	assert.Equal(t, "sub-b", loader.FindCase(root, "sub-b").ID)
	assert.Nil(t, loader.FindCase(root, "nope"))
	assert.Equal(t, 5, loader.CountCommands(root))
}

func TestUpdateCaseReturnsNewTree(t *testing.T) {
	root := sampleTree()

	next := loader.UpdateCase(root, "sub-a-1", func(tc loader.TestCase) loader.TestCase {
		tc.Status = loader.StatusRunning
		tc.CurrentCommand = 0
		return tc
	})

	assert.NotSame(t, root, next)
	assert.Equal(t, loader.StatusRunning, loader.FindCase(next, "sub-a-1").Status)
	assert.Equal(t, loader.Status(""), loader.FindCase(root, "sub-a-1").Status, "original must not change")

	// untouched siblings are shared
	assert.Same(t, root.SubCases[1], next.SubCases[1])

	unchanged := loader.UpdateCase(root, "missing", func(tc loader.TestCase) loader.TestCase {
		tc.Name = "x"
		return tc
	})
	assert.Same(t, root, unchanged)
}

func TestUpdateCommand(t *testing.T) {
	root := sampleTree()
	next := loader.UpdateCommand(root, "root", 1, func(c loader.Command) loader.Command {
		c.Status = loader.StatusFailed
		return c
	})

	assert.Equal(t, loader.StatusFailed, next.Commands[1].Status)
	assert.Equal(t, loader.Status(""), root.Commands[1].Status)
	assert.Same(t, root.Commands[0], next.Commands[0])

	same := loader.UpdateCommand(root, "root", 9, func(c loader.Command) loader.Command { return c })
	assert.Equal(t, root.Commands, same.Commands)
}

func TestResetRuntimeAndClone(t *testing.T) {
	root := sampleTree()
	root.Status = loader.StatusFailed
	root.IsRunning = true
	root.CurrentCommand = 1
	root.Commands[0].Status = loader.StatusSuccess
	root.Commands[0].Selected = true

	reset := loader.ResetRuntime(root)
	assert.Equal(t, loader.StatusPending, reset.Status)
	assert.False(t, reset.IsRunning)
	assert.Equal(t, -1, reset.CurrentCommand)
	assert.Equal(t, loader.StatusPending, reset.Commands[0].Status)
	assert.True(t, reset.Commands[0].Selected, "selection survives a reset")
	assert.True(t, root.IsRunning, "original must not change")
}

func TestSelectCommands(t *testing.T) {
	root := sampleTree()
	sel, unknown := loader.SelectCommands(root, []string{"c2", "deep", "ghost"})

	assert.Equal(t, []string{"ghost"}, unknown)
	assert.False(t, sel.Commands[0].Selected)
	assert.True(t, sel.Commands[1].Selected)
	assert.True(t, sel.SubCases[0].SubCases[0].Commands[0].Selected)
	assert.False(t, root.Commands[1].Selected)
}
