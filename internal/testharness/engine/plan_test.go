package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atcase/atcase-go/internal/testharness/loader"
)

func exec(id string) *loader.Command {
	return &loader.Command{ID: id, Kind: loader.KindExecution, Command: "AT"}
}

func planIDs(p *plan) []string {
	ids := make([]string, len(p.steps))
	for i, st := range p.steps {
		ids[i] = st.cmd.ID
	}
	return ids
}

func nestedTree() *loader.TestCase {
	return &loader.TestCase{
		ID:       "root",
		Commands: []*loader.Command{exec("a"), exec("b")},
		SubCases: []*loader.TestCase{
			{
				ID:          "child",
				RepeatCount: 2,
				Commands:    []*loader.Command{exec("c")},
				SubCases: []*loader.TestCase{
					{ID: "grandchild", Commands: []*loader.Command{exec("d")}},
				},
			},
			{ID: "sibling", Commands: []*loader.Command{exec("e")}},
		},
	}
}

func TestBuildPlanOrder(t *testing.T) {
	p := buildPlan(nestedTree())

	assert.Equal(t, []string{"a", "b", "c", "d", "c", "d", "e"}, planIDs(p))
	assert.Equal(t, 7, p.runnableCount())
	assert.Equal(t, "grandchild", p.steps[3].owner.ID)
	assert.Equal(t, 0, p.steps[3].cmdIndex)
	assert.Equal(t, 1, p.steps[1].cmdIndex)

	c := p.steps[2].cmd
	i, ok := p.indexOf(c)
	require.True(t, ok)
	assert.Equal(t, 2, i)
}

func TestBuildPlanTopLevelRepeatNotExpanded(t *testing.T) {
	tc := &loader.TestCase{ID: "root", RepeatCount: 3, Commands: []*loader.Command{exec("a")}}
	p := buildPlan(tc)
	assert.Equal(t, []string{"a"}, planIDs(p))
}

func TestBuildPlanSelection(t *testing.T) {
	tree := nestedTree()
	tree.Commands[1].Selected = true
	tree.SubCases[1].Commands[0].Selected = true

	p := buildPlan(tree)
	assert.Len(t, p.steps, 7)
	assert.Equal(t, 2, p.runnableCount())
	assert.False(t, p.steps[0].runnable)
	assert.True(t, p.steps[1].runnable)
	assert.True(t, p.steps[6].runnable)
}

func TestResolveTarget(t *testing.T) {
	tree := nestedTree()

	loc, ok := ResolveTarget(tree, "d")
	require.True(t, ok)
	assert.Equal(t, Location{CaseID: "grandchild", CommandIndex: 0}, loc)

	loc, ok = ResolveTarget(tree, "b")
	require.True(t, ok)
	assert.Equal(t, Location{CaseID: "root", CommandIndex: 1}, loc)

	_, ok = ResolveTarget(tree.SubCases[0], "e")
	assert.False(t, ok, "search must not leave the subtree")
}

func TestJumpResolverNext(t *testing.T) {
	tree := nestedTree()
	urc := &loader.Command{
		ID:   "u",
		Kind: loader.KindURC,
		Jump: &loader.JumpConfig{OnReceived: loader.JumpTo, Target: "e"},
	}
	tree.Commands = append(tree.Commands, urc)
	p := buildPlan(tree)
	j := &jumpResolver{plan: p}

	pos, err := j.next(tree, urc)
	require.NoError(t, err)
	assert.Equal(t, "e", p.steps[pos].cmd.ID)

	urc.Jump.Target = "d"
	pos, err = j.next(tree, urc)
	require.NoError(t, err)
	assert.Equal(t, 4, pos, "first occurrence of a repeated sub-case")

	urc.Jump.OnReceived = loader.JumpContinue
	pos, err = j.next(tree, urc)
	require.NoError(t, err)
	assert.Equal(t, -1, pos)

	urc.Jump = nil
	pos, err = j.next(tree, urc)
	require.NoError(t, err)
	assert.Equal(t, -1, pos)
}

func TestJumpResolverErrors(t *testing.T) {
	tree := nestedTree()
	urc := &loader.Command{ID: "u", Kind: loader.KindURC, Jump: &loader.JumpConfig{OnReceived: loader.JumpTo}}
	tree.SubCases[0].Commands = append(tree.SubCases[0].Commands, urc)
	j := &jumpResolver{plan: buildPlan(tree)}

	_, err := j.next(tree.SubCases[0], urc)
	assert.True(t, errors.Is(err, ErrJumpTarget))
	assert.Equal(t, ErrKindConfiguration, KindOf(err))

	urc.Jump.Target = "e"
	pos, err := j.next(tree.SubCases[0], urc)
	assert.Equal(t, -1, pos)
	assert.ErrorIs(t, err, ErrJumpTarget)

	urc.Jump.Target = "nowhere"
	_, err = j.next(tree.SubCases[0], urc)
	assert.ErrorIs(t, err, ErrJumpTarget)
}
