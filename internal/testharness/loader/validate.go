package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// Validate checks a case tree for authoring mistakes.
// Returns a list of validation errors (which may be empty if valid).
func Validate(root *TestCase) []*ValidationError {
	if root == nil {
		return nil
	}

	v := &validator{
		caseIDs: make(map[string]bool),
		cmdIDs:  make(map[string]bool),
	}
	v.validateCase(root, root.ID)
	return v.errs
}

// HasErrors reports whether any finding is error level.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Level == ValidationLevelError {
			return true
		}
	}
	return false
}

type validator struct {
	caseIDs map[string]bool
	cmdIDs  map[string]bool
	errs    []*ValidationError
}

func (v *validator) add(level ValidationLevel, field, format string, args ...interface{}) {
	v.errs = append(v.errs, &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Level:   level,
	})
}

func (v *validator) validateCase(tc *TestCase, path string) {
	if v.caseIDs[tc.ID] {
		v.add(ValidationLevelError, path, "duplicate case id %q", tc.ID)
	}
	v.caseIDs[tc.ID] = true

	for _, s := range []struct {
		field string
		value Strategy
	}{
		{"failure_strategy", tc.FailureStrategy},
		{"on_warning_failure", tc.OnWarningFailure},
		{"on_error_failure", tc.OnErrorFailure},
	} {
		if !s.value.Valid() {
			v.add(ValidationLevelError, path+"."+s.field, "unknown strategy %q", s.value)
		}
	}

	switch tc.ValidationLevel {
	case "", ValidationLevelError, ValidationLevelWarning:
	default:
		v.add(ValidationLevelError, path+".validation_level", "unknown validation level %q", tc.ValidationLevel)
	}
	switch tc.RunMode {
	case "", RunModeAuto, RunModeSingle:
	default:
		v.add(ValidationLevelError, path+".run_mode", "unknown run mode %q", tc.RunMode)
	}
	if tc.RepeatCount < 0 {
		v.add(ValidationLevelError, path+".repeat_count", "must be at least 1, got %d", tc.RepeatCount)
	}
	if len(tc.Commands) == 0 && len(tc.SubCases) == 0 {
		v.add(ValidationLevelWarning, path, "case has no commands and no sub-cases")
	}

	for i, cmd := range tc.Commands {
		field := fmt.Sprintf("%s/%s", path, cmd.ID)
		if cmd.ID == "" {
			field = fmt.Sprintf("%s/commands[%d]", path, i)
			v.add(ValidationLevelError, field, "command id is required")
		} else if v.cmdIDs[cmd.ID] {
			v.add(ValidationLevelError, field, "duplicate command id %q", cmd.ID)
		}
		v.cmdIDs[cmd.ID] = true
		v.validateCommand(tc, cmd, field)
	}

	for _, sub := range tc.SubCases {
		v.validateCase(sub, path+"/"+sub.ID)
	}
}

func (v *validator) validateCommand(owner *TestCase, cmd *Command, field string) {
	switch cmd.Severity {
	case "", SeverityWarning, SeverityError:
	default:
		v.add(ValidationLevelError, field+".severity", "unknown severity %q", cmd.Severity)
	}
	if cmd.MaxAttempts < 0 {
		v.add(ValidationLevelError, field+".max_attempts", "must not be negative")
	}
	if cmd.RequiresConfirmation && cmd.ConfirmationPrompt == "" {
		v.add(ValidationLevelInfo, field+".confirmation_prompt", "no prompt text, a generic prompt is shown")
	}

	switch cmd.Kind {
	case KindExecution:
		v.validateExecution(cmd, field)
	case KindURC:
		v.validateURC(owner, cmd, field)
	default:
		v.add(ValidationLevelError, field+".kind", "unknown command kind %q", cmd.Kind)
	}
}

func (v *validator) validateExecution(cmd *Command, field string) {
	if cmd.Command == "" {
		v.add(ValidationLevelError, field+".command", "execution command has no text")
	}
	if !cmd.Encoding.Valid() {
		v.add(ValidationLevelError, field+".encoding", "unknown encoding %q", cmd.Encoding)
	}
	if !cmd.LineEnding.Valid() {
		v.add(ValidationLevelError, field+".line_ending", "unknown line ending %q", cmd.LineEnding)
	}

	switch cmd.Validation {
	case "", ValidateNone:
	case ValidateContains, ValidateEquals:
		if cmd.Expected == "" {
			v.add(ValidationLevelWarning, field+".expected", "%s validation with empty expected text", cmd.Validation)
		}
	case ValidateRegex:
		v.checkRegex(field+".expected", cmd.Expected)
	default:
		v.add(ValidationLevelError, field+".validation", "unknown validation method %q", cmd.Validation)
	}

	if cmd.Pattern != "" || cmd.Parse != nil || cmd.Jump != nil {
		v.add(ValidationLevelWarning, field, "URC fields are ignored on execution commands")
	}
}

func (v *validator) validateURC(owner *TestCase, cmd *Command, field string) {
	if cmd.Pattern == "" {
		v.add(ValidationLevelError, field+".pattern", "URC command has no pattern")
	}

	switch cmd.MatchMode {
	case "", MatchContains, MatchExact, MatchStartsWith, MatchEndsWith:
	case MatchRegex:
		v.checkRegex(field+".pattern", cmd.Pattern)
	default:
		v.add(ValidationLevelError, field+".match_mode", "unknown match mode %q", cmd.MatchMode)
	}

	switch cmd.ListenMode {
	case "", ListenOnce, ListenPermanent:
	default:
		v.add(ValidationLevelError, field+".listen_mode", "unknown listen mode %q", cmd.ListenMode)
	}
	if !cmd.OnTimeout.Valid() {
		v.add(ValidationLevelError, field+".on_timeout", "unknown strategy %q", cmd.OnTimeout)
	}

	if cmd.Parse != nil {
		v.validateParse(cmd, field+".parse")
	}

	if j := cmd.Jump; j != nil {
		switch j.OnReceived {
		case "", JumpContinue:
		case JumpTo:
			if j.Target == "" {
				v.add(ValidationLevelError, field+".jump.target", "jump has no target")
			} else if _, _, ok := FindCommand(owner, j.Target); !ok {
				v.add(ValidationLevelError, field+".jump.target", "target %q not found in case %s or its sub-cases", j.Target, owner.ID)
			}
		default:
			v.add(ValidationLevelError, field+".jump.on_received", "unknown jump action %q", j.OnReceived)
		}
	}
}

func (v *validator) validateParse(cmd *Command, field string) {
	p := cmd.Parse
	if len(p.Params) == 0 {
		v.add(ValidationLevelWarning, field+".params", "parse rule has no parameter map")
	}

	switch p.Kind {
	case ParseRegex:
		pattern := p.Pattern
		if pattern == "" {
			pattern = cmd.Pattern
		}
		v.checkRegex(field+".pattern", pattern)
		for key := range p.Params {
			if strings.HasPrefix(key, "index") {
				v.add(ValidationLevelWarning, field+".params", "key %q is a split index, not a regex group", key)
			}
		}
	case ParseSplit:
		if p.Pattern == "" {
			v.add(ValidationLevelError, field+".pattern", "split rule has no delimiter")
		}
		for key := range p.Params {
			if _, err := strconv.Atoi(strings.TrimPrefix(key, "index")); err != nil {
				v.add(ValidationLevelWarning, field+".params", "key %q is not a split index", key)
			}
		}
	default:
		v.add(ValidationLevelError, field+".kind", "unknown parse kind %q", p.Kind)
	}
}

func (v *validator) checkRegex(field, expr string) {
	if expr == "" {
		v.add(ValidationLevelError, field, "empty regular expression")
		return
	}
	if _, err := regexp2.Compile(expr, regexp2.None); err != nil {
		v.add(ValidationLevelError, field, "invalid regular expression: %v", err)
	}
}

// Valid reports whether s is a known strategy. The empty value means
// "not set".
func (s Strategy) Valid() bool {
	switch s {
	case "", StrategyStop, StrategyContinue, StrategyPrompt:
		return true
	}
	return false
}
