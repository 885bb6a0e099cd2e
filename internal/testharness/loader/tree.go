package loader

// Walk visits tc and its sub-cases depth-first, commands' owners before
// their sub-cases. Returning false from fn stops the walk.
func Walk(tc *TestCase, fn func(tc *TestCase, depth int) bool) {
	walk(tc, 0, fn)
}

func walk(tc *TestCase, depth int, fn func(*TestCase, int) bool) bool {
	if tc == nil {
		return true
	}
	if !fn(tc, depth) {
		return false
	}
	for _, sub := range tc.SubCases {
		if !walk(sub, depth+1, fn) {
			return false
		}
	}
	return true
}

// FindCase returns the case with the given id inside root's subtree.
func FindCase(root *TestCase, id string) *TestCase {
	var found *TestCase
	Walk(root, func(tc *TestCase, _ int) bool {
		if tc.ID == id {
			found = tc
			return false
		}
		return true
	})
	return found
}

// FindCommand searches root's subtree depth-first for a command id and
// returns the owning case and the command's index in it.
func FindCommand(root *TestCase, id string) (*TestCase, int, bool) {
	var (
		owner *TestCase
		index = -1
	)
	Walk(root, func(tc *TestCase, _ int) bool {
		for i, cmd := range tc.Commands {
			if cmd.ID == id {
				owner, index = tc, i
				return false
			}
		}
		return true
	})
	return owner, index, owner != nil
}

// CountCommands returns the number of commands in root's subtree.
func CountCommands(root *TestCase) int {
	n := 0
	Walk(root, func(tc *TestCase, _ int) bool {
		n += len(tc.Commands)
		return true
	})
	return n
}

// Clone returns a deep copy of tc.
func Clone(tc *TestCase) *TestCase {
	if tc == nil {
		return nil
	}
	out := *tc
	out.Tags = append([]string(nil), tc.Tags...)
	out.Commands = make([]*Command, len(tc.Commands))
	for i, cmd := range tc.Commands {
		out.Commands[i] = cloneCommand(cmd)
	}
	out.SubCases = make([]*TestCase, len(tc.SubCases))
	for i, sub := range tc.SubCases {
		out.SubCases[i] = Clone(sub)
	}
	return &out
}

func cloneCommand(cmd *Command) *Command {
	c := *cmd
	if cmd.RetryDelay != nil {
		d := *cmd.RetryDelay
		c.RetryDelay = &d
	}
	if cmd.Parse != nil {
		p := *cmd.Parse
		p.Params = make(map[string]string, len(cmd.Parse.Params))
		for k, v := range cmd.Parse.Params {
			p.Params[k] = v
		}
		c.Parse = &p
	}
	if cmd.Jump != nil {
		j := *cmd.Jump
		c.Jump = &j
	}
	return &c
}

// UpdateCase returns a new tree in which the case with the given id is
// replaced by fn's result. Nodes off the path to that case are shared with
// root; root itself is never modified. If no case matches, root is
// returned unchanged.
func UpdateCase(root *TestCase, id string, fn func(TestCase) TestCase) *TestCase {
	if root == nil {
		return nil
	}
	if root.ID == id {
		updated := fn(*root)
		return &updated
	}
	for i, sub := range root.SubCases {
		next := UpdateCase(sub, id, fn)
		if next == sub {
			continue
		}
		out := *root
		out.SubCases = append([]*TestCase(nil), root.SubCases...)
		out.SubCases[i] = next
		return &out
	}
	return root
}

// UpdateCommand returns a new tree in which command index of case caseID
// is replaced by fn's result.
func UpdateCommand(root *TestCase, caseID string, index int, fn func(Command) Command) *TestCase {
	return UpdateCase(root, caseID, func(tc TestCase) TestCase {
		if index < 0 || index >= len(tc.Commands) {
			return tc
		}
		cmds := append([]*Command(nil), tc.Commands...)
		updated := fn(*cmds[index])
		cmds[index] = &updated
		tc.Commands = cmds
		return tc
	})
}

// ResetRuntime returns a copy of root with every case pending, idle, and
// every command pending. Selection is kept.
func ResetRuntime(root *TestCase) *TestCase {
	out := Clone(root)
	resetRuntime(out)
	return out
}

func resetRuntime(root *TestCase) {
	Walk(root, func(tc *TestCase, _ int) bool {
		tc.Status = StatusPending
		tc.CurrentCommand = -1
		tc.IsRunning = false
		for _, cmd := range tc.Commands {
			cmd.Status = StatusPending
		}
		return true
	})
}

// SelectCommands returns a copy of root in which exactly the commands
// named in ids are selected. Unknown ids are returned.
func SelectCommands(root *TestCase, ids []string) (*TestCase, []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	out := Clone(root)
	Walk(out, func(tc *TestCase, _ int) bool {
		for _, cmd := range tc.Commands {
			cmd.Selected = want[cmd.ID]
			if cmd.Selected {
				delete(want, cmd.ID)
			}
		}
		return true
	})

	var unknown []string
	for _, id := range ids {
		if want[id] {
			unknown = append(unknown, id)
		}
	}
	return out, unknown
}
