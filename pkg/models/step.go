package models

import (
	"errors"
	"fmt"
	"time"
)

// StepType discriminates the step union.
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeWait      StepType = "wait"
	StepTypeEnd       StepType = "end"
)

// Step is one node in a workflow's action/condition/wait graph. The Type field
// selects which of the remaining fields are meaningful; Validate enforces the
// per-type requirements.
type Step struct {
	Name string   `json:"name"`
	Type StepType `json:"type" validate:"required,oneof=action condition wait end"`

	// Action steps.
	ActionType   string         `json:"action_type,omitempty"`
	ActionConfig map[string]any `json:"action_config,omitempty"`
	BestEffort   bool           `json:"best_effort,omitempty"`

	// Condition steps. Branch targets are indexes into the owning
	// definition's step list.
	Expression *Condition `json:"expression,omitempty"`
	TrueNext   *int       `json:"true_next,omitempty"`
	FalseNext  *int       `json:"false_next,omitempty"`

	// Wait steps. DurationSeconds waits a fixed time; WaitExpression waits
	// until the expression evaluates true against the execution context,
	// re-checked on every resumer pass.
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	WaitExpression  *Condition `json:"wait_expression,omitempty"`
}

var (
	ErrStepActionTypeRequired = errors.New("action step requires an action_type")
	ErrStepExpressionRequired = errors.New("condition step requires an expression")
	ErrStepWaitRequired       = errors.New("wait step requires duration_seconds or wait_expression")
	ErrStepNegativeDuration   = errors.New("wait step duration cannot be negative")
)

// Validate checks that the fields required by the step's type are present.
func (s *Step) Validate() error {
	switch s.Type {
	case StepTypeAction:
		if s.ActionType == "" {
			return ErrStepActionTypeRequired
		}
	case StepTypeCondition:
		if s.Expression == nil {
			return ErrStepExpressionRequired
		}
	case StepTypeWait:
		if s.DurationSeconds == nil && s.WaitExpression == nil {
			return ErrStepWaitRequired
		}

		if s.DurationSeconds != nil && *s.DurationSeconds < 0 {
			return ErrStepNegativeDuration
		}
	case StepTypeEnd:
	default:
		return fmt.Errorf("unknown step type %q", s.Type)
	}

	return nil
}

// WaitDuration returns the fixed wait duration for time-based wait steps and
// false for condition-based waits.
func (s *Step) WaitDuration() (time.Duration, bool) {
	if s.DurationSeconds == nil {
		return 0, false
	}

	return time.Duration(*s.DurationSeconds) * time.Second, true
}
