package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_Validate(t *testing.T) {
	duration := int64(60)
	negative := int64(-1)
	trueNext := 2

	tests := []struct {
		name        string
		step        Step
		expectedErr error
	}{
		{
			name: "valid action step",
			step: Step{Type: StepTypeAction, ActionType: "send-email"},
		},
		{
			name:        "action step without action type",
			step:        Step{Type: StepTypeAction},
			expectedErr: ErrStepActionTypeRequired,
		},
		{
			name: "valid condition step",
			step: Step{
				Type:       StepTypeCondition,
				Expression: &Condition{Kind: ConditionKindCompare, Field: "status", Operator: OperatorEq, Value: "paid"},
				TrueNext:   &trueNext,
			},
		},
		{
			name:        "condition step without expression",
			step:        Step{Type: StepTypeCondition},
			expectedErr: ErrStepExpressionRequired,
		},
		{
			name: "valid timed wait",
			step: Step{Type: StepTypeWait, DurationSeconds: &duration},
		},
		{
			name: "valid condition wait",
			step: Step{Type: StepTypeWait, WaitExpression: &Condition{Kind: ConditionKindCompare}},
		},
		{
			name:        "wait step without duration or expression",
			step:        Step{Type: StepTypeWait},
			expectedErr: ErrStepWaitRequired,
		},
		{
			name:        "wait step with negative duration",
			step:        Step{Type: StepTypeWait, DurationSeconds: &negative},
			expectedErr: ErrStepNegativeDuration,
		},
		{
			name: "end step",
			step: Step{Type: StepTypeEnd},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}
		})
	}

	t.Run("unknown step type", func(t *testing.T) {
		step := Step{Type: StepType("loop")}
		assert.Error(t, step.Validate())
	})
}

func TestStep_WaitDuration(t *testing.T) {
	seconds := int64(90)

	timed := Step{Type: StepTypeWait, DurationSeconds: &seconds}
	d, ok := timed.WaitDuration()
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	conditional := Step{Type: StepTypeWait, WaitExpression: &Condition{}}
	_, ok = conditional.WaitDuration()
	assert.False(t, ok)
}

func TestWorkflowExecution_EvaluationContext(t *testing.T) {
	execution := WorkflowExecution{
		TriggerPayload: map[string]any{"status": "paid", "total": 10},
		StepOutputs:    map[string]any{"total": 20, "charged": true},
	}

	merged := execution.EvaluationContext()

	assert.Equal(t, "paid", merged["status"])
	assert.Equal(t, 20, merged["total"], "step outputs win on collision")
	assert.Equal(t, true, merged["charged"])
}

func TestWebhookSubscription_SubscribedTo(t *testing.T) {
	subscription := WebhookSubscription{EventTypes: []string{"order.created", "order.paid"}}

	assert.True(t, subscription.SubscribedTo("order.paid"))
	assert.False(t, subscription.SubscribedTo("order.cancelled"))
}

func TestDeliveryAttempt_Exhausted(t *testing.T) {
	failed := DeliveryAttempt{AttemptNumber: 3, Success: false}
	assert.True(t, failed.Exhausted(3))
	assert.False(t, failed.Exhausted(5))

	succeeded := DeliveryAttempt{AttemptNumber: 3, Success: true}
	assert.False(t, succeeded.Exhausted(3))
}
