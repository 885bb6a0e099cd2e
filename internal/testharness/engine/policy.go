package engine

import "github.com/atcase/atcase-go/internal/testharness/loader"

// Decision is the outcome of the execution policy for a failed command.
type Decision int

const (
	// DecisionContinue records the failure and goes on.
	DecisionContinue Decision = iota
	// DecisionStop aborts the remaining steps of the run.
	DecisionStop
	// DecisionAwait suspends until the operator decides.
	DecisionAwait
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionStop:
		return "stop"
	case DecisionAwait:
		return "await"
	default:
		return "unknown"
	}
}

// DefaultStrategy applies when a case sets no strategy at all.
const DefaultStrategy = loader.StrategyStop

// StrategyFor returns the case strategy for a failure of the given
// severity: the severity-specific override, else the case's
// failure_strategy, else DefaultStrategy.
func StrategyFor(tc *loader.TestCase, severity loader.Severity) loader.Strategy {
	var override loader.Strategy
	if severityOf(severity) == loader.SeverityWarning {
		override = tc.OnWarningFailure
	} else {
		override = tc.OnErrorFailure
	}
	if override != "" {
		return override
	}
	if tc.FailureStrategy != "" {
		return tc.FailureStrategy
	}
	return DefaultStrategy
}

// ShouldStop maps a strategy to a decision. It never blocks; an
// unknown strategy stops.
func ShouldStop(strategy loader.Strategy) Decision {
	switch strategy {
	case loader.StrategyContinue:
		return DecisionContinue
	case loader.StrategyPrompt:
		return DecisionAwait
	default:
		return DecisionStop
	}
}

// ResolvePolicy decides what happens after cmd, owned by tc, has used up
// its attempts. A URC's own on_timeout takes precedence over the case.
func ResolvePolicy(tc *loader.TestCase, cmd *loader.Command) Decision {
	if cmd.Kind == loader.KindURC && cmd.OnTimeout != "" {
		return ShouldStop(cmd.OnTimeout)
	}
	return ShouldStop(StrategyFor(tc, cmd.Severity))
}

// countsAsFailing reports whether a failure of the given severity makes
// a run unsuccessful under the case's validation level.
func countsAsFailing(tc *loader.TestCase, severity loader.Severity) bool {
	if severityOf(severity) == loader.SeverityError {
		return true
	}
	return tc.ValidationLevel == loader.ValidationLevelWarning
}

func severityOf(s loader.Severity) loader.Severity {
	if s == loader.SeverityWarning {
		return loader.SeverityWarning
	}
	return loader.SeverityError
}
