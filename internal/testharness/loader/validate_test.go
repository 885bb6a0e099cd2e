package loader_test

import (
	"strings"
	"testing"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanCase(t *testing.T) {
	tc, err := loader.ParseTestCase([]byte(basicCase))
	require.NoError(t, err)

	errs := loader.Validate(tc)
	assert.False(t, loader.HasErrors(errs), "unexpected findings: %v", errs)
}

func TestValidateFindings(t *testing.T) {
	tests := []struct {
		name  string
		tc    *loader.TestCase
		field string
		level loader.ValidationLevel
	}{
		{
			name: "duplicate command id across sub-cases",
			tc: &loader.TestCase{
				ID:       "root",
				Commands: []*loader.Command{{ID: "x", Kind: loader.KindExecution, Command: "AT"}},
				SubCases: []*loader.TestCase{{ID: "s", Commands: []*loader.Command{{ID: "x", Kind: loader.KindExecution, Command: "AT"}}}},
			},
			field: "root/s/x",
			level: loader.ValidationLevelError,
		},
		{
			name: "malformed urc regex",
			tc: &loader.TestCase{ID: "root", Commands: []*loader.Command{
				{ID: "u", Kind: loader.KindURC, Pattern: "+CSQ:(\\d+", MatchMode: loader.MatchRegex},
			}},
			field: "root/u.pattern",
			level: loader.ValidationLevelError,
		},
		{
			name: "jump target outside subtree",
			tc: &loader.TestCase{
				ID: "root",
				SubCases: []*loader.TestCase{
					{ID: "a", Commands: []*loader.Command{{ID: "u", Kind: loader.KindURC, Pattern: "RING",
						Jump: &loader.JumpConfig{OnReceived: loader.JumpTo, Target: "b1"}}}},
					{ID: "b", Commands: []*loader.Command{{ID: "b1", Kind: loader.KindExecution, Command: "ATA"}}},
				},
			},
			field: "root/a/u.jump.target",
			level: loader.ValidationLevelError,
		},
		{
			name: "unknown strategy",
			tc: &loader.TestCase{ID: "root", OnWarningFailure: "ignore",
				Commands: []*loader.Command{{ID: "c", Kind: loader.KindExecution, Command: "AT"}}},
			field: "root.on_warning_failure",
			level: loader.ValidationLevelError,
		},
		{
			name: "split without delimiter",
			tc: &loader.TestCase{ID: "root", Commands: []*loader.Command{
				{ID: "u", Kind: loader.KindURC, Pattern: "+CREG:",
					Parse: &loader.ParseRule{Kind: loader.ParseSplit, Params: map[string]string{"1": "stat"}}},
			}},
			field: "root/u.parse.pattern",
			level: loader.ValidationLevelError,
		},
		{
			name: "contains without expected text",
			tc: &loader.TestCase{ID: "root", Commands: []*loader.Command{
				{ID: "c", Kind: loader.KindExecution, Command: "AT", Validation: loader.ValidateContains},
			}},
			field: "root/c.expected",
			level: loader.ValidationLevelWarning,
		},
		{
			name: "unknown kind",
			tc: &loader.TestCase{ID: "root", Commands: []*loader.Command{
				{ID: "c", Kind: "sleep"},
			}},
			field: "root/c.kind",
			level: loader.ValidationLevelError,
		},
		{
			name: "bad hex line ending",
			tc: &loader.TestCase{ID: "root", Commands: []*loader.Command{
				{ID: "c", Kind: loader.KindExecution, Command: "AT", LineEnding: "lfcr"},
			}},
			field: "root/c.line_ending",
			level: loader.ValidationLevelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := loader.Validate(tt.tc)
			var found *loader.ValidationError
			for _, e := range errs {
				if e.Field == tt.field {
					found = e
					break
				}
			}
			require.NotNil(t, found, "no finding for %s in %v", tt.field, errs)
			assert.Equal(t, tt.level, found.Level)
			assert.True(t, strings.HasPrefix(found.Error(), tt.field+": "))
		})
	}
}

func TestValidateNil(t *testing.T) {
	assert.Nil(t, loader.Validate(nil))
}
