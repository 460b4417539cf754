package safety

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Verdict is the outcome of validating one raw command string.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Validator checks raw shell commands against a Policy.
type Validator struct {
	policy            Policy
	rules             []rule
	pipeToInterpreter *regexp.Regexp
}

// NewValidator builds a validator for policy. The allowlist rule always runs
// first.
func NewValidator(policy Policy) *Validator {
	return &Validator{
		policy: policy,
		rules: []rule{
			checkAllowlist,
			checkHiddenCommands,
			checkDestructiveRemove,
			checkProcessTermination,
			checkRemoteExecution,
		},
		pipeToInterpreter: buildPipePattern(policy),
	}
}

// Validate decides whether raw may run.
func (v *Validator) Validate(raw string) Verdict {
	if strings.TrimSpace(raw) == "" {
		return Verdict{Reason: "empty command"}
	}
	// Every rule sees what the shell would run, never comment text.
	stripped := StripComments(raw)
	segments, err := Tokenize(stripped)
	if err != nil {
		if errors.Is(err, ErrEmptyCommand) {
			return Verdict{Reason: "empty command"}
		}
		return Verdict{Reason: fmt.Sprintf("could not parse command: %v", err)}
	}

	c := &command{raw: stripped, segments: segments}
	for _, r := range v.rules {
		if reason := r(v, c); reason != "" {
			return Verdict{Reason: reason}
		}
	}
	return Verdict{Allowed: true}
}

// Policy returns the validator's policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

var defaultValidator = NewValidator(DefaultPolicy())

// Validate checks raw against the default policy.
func Validate(raw string) Verdict {
	return defaultValidator.Validate(raw)
}
