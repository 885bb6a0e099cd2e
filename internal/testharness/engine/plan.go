package engine

import "github.com/atcase/atcase-go/internal/testharness/loader"

// step is one entry of a flattened run plan.
type step struct {
	owner    *loader.TestCase
	cmd      *loader.Command
	cmdIndex int

	// runnable steps are visited by sequential flow; others only run
	// when a jump lands on them.
	runnable bool
}

// plan is a case tree flattened into execution order: each case's
// commands, then its sub-cases, with sub-case repeat counts expanded.
type plan struct {
	steps []step
	first map[*loader.Command]int
}

// buildPlan flattens root. When any command in the tree is selected only
// selected commands are runnable; otherwise all are.
func buildPlan(root *loader.TestCase) *plan {
	anySelected := false
	loader.Walk(root, func(tc *loader.TestCase, _ int) bool {
		for _, cmd := range tc.Commands {
			if cmd.Selected {
				anySelected = true
				return false
			}
		}
		return true
	})

	p := &plan{first: make(map[*loader.Command]int)}
	p.add(root, anySelected, true)
	return p
}

func (p *plan) add(tc *loader.TestCase, onlySelected, top bool) {
	repeat := 1
	if !top && tc.RepeatCount > 1 {
		repeat = tc.RepeatCount
	}
	for r := 0; r < repeat; r++ {
		for i, cmd := range tc.Commands {
			if _, seen := p.first[cmd]; !seen {
				p.first[cmd] = len(p.steps)
			}
			p.steps = append(p.steps, step{
				owner:    tc,
				cmd:      cmd,
				cmdIndex: i,
				runnable: !onlySelected || cmd.Selected,
			})
		}
		for _, sub := range tc.SubCases {
			p.add(sub, onlySelected, false)
		}
	}
}

// indexOf returns the plan position of the first occurrence of cmd.
func (p *plan) indexOf(cmd *loader.Command) (int, bool) {
	i, ok := p.first[cmd]
	return i, ok
}

// runnableCount returns the number of steps sequential flow visits.
func (p *plan) runnableCount() int {
	n := 0
	for _, st := range p.steps {
		if st.runnable {
			n++
		}
	}
	return n
}
