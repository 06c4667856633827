package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextCheckoutState_Table(t *testing.T) {
	tests := []struct {
		state  CheckoutState
		action CheckoutAction
		want   CheckoutState
	}{
		{CheckoutIdle, ActionStartCheckout, CheckoutSelectingDetails},
		{CheckoutSelectingDetails, ActionSubmit, CheckoutValidating},
		{CheckoutValidating, ActionValidated, CheckoutSubmitting},
		{CheckoutValidating, ActionSubmitError, CheckoutError},
		{CheckoutSubmitting, ActionSubmitSuccess, CheckoutSuccess},
		{CheckoutSubmitting, ActionSubmitError, CheckoutError},
		{CheckoutError, ActionRetry, CheckoutSelectingDetails},
		{CheckoutSuccess, ActionReset, CheckoutIdle},
		{CheckoutSubmitting, ActionCancel, CheckoutIdle},
	}

	for _, tt := range tests {
		t.Run(string(tt.state)+"/"+string(tt.action), func(t *testing.T) {
			got, ok := NextCheckoutState(tt.state, tt.action)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextCheckoutState_IllegalPairs(t *testing.T) {
	illegal := []struct {
		state  CheckoutState
		action CheckoutAction
	}{
		{CheckoutIdle, ActionSubmit},
		{CheckoutIdle, ActionCancel},
		{CheckoutSelectingDetails, ActionSubmitSuccess},
		{CheckoutSuccess, ActionRetry},
		{CheckoutSuccess, ActionCancel},
		{CheckoutError, ActionSubmit},
		{CheckoutSubmitting, ActionStartCheckout},
	}

	for _, tt := range illegal {
		got, ok := NextCheckoutState(tt.state, tt.action)
		assert.False(t, ok, "%s/%s", tt.state, tt.action)
		assert.Empty(t, got)
	}
}

// Every (state, action) pair must either be defined or rejected, and every
// defined target must be a known state.
func TestNextCheckoutState_Total(t *testing.T) {
	known := make(map[CheckoutState]bool)
	for _, s := range allCheckoutStates() {
		known[s] = true
	}

	for _, s := range allCheckoutStates() {
		for _, a := range allCheckoutActions() {
			next, ok := NextCheckoutState(s, a)
			if ok {
				assert.True(t, known[next], "%s/%s -> %s", s, a, next)
			}
		}
	}
}

func TestCheckoutState_ResetAlwaysReturnsToIdleFromBusyStates(t *testing.T) {
	for _, s := range allCheckoutStates() {
		if s == CheckoutIdle {
			continue
		}
		next, ok := NextCheckoutState(s, ActionReset)
		assert.True(t, ok, s.String())
		assert.Equal(t, CheckoutIdle, next)
	}
}

// allCheckoutStates lists every state, in lifecycle order.
func allCheckoutStates() []CheckoutState {
	return []CheckoutState{
		CheckoutIdle,
		CheckoutSelectingDetails,
		CheckoutValidating,
		CheckoutSubmitting,
		CheckoutSuccess,
		CheckoutError,
	}
}

// allCheckoutActions lists every action the machine understands.
func allCheckoutActions() []CheckoutAction {
	return []CheckoutAction{
		ActionStartCheckout,
		ActionSubmit,
		ActionValidated,
		ActionSubmitSuccess,
		ActionSubmitError,
		ActionRetry,
		ActionCancel,
		ActionReset,
	}
}
