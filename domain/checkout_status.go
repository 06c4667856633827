package domain

// CheckoutState is a step in the lifecycle of one sale.
type CheckoutState string

const (
	CheckoutIdle             CheckoutState = "IDLE"
	CheckoutSelectingDetails CheckoutState = "SELECTING_DETAILS"
	CheckoutValidating       CheckoutState = "VALIDATING"
	CheckoutSubmitting       CheckoutState = "SUBMITTING"
	CheckoutSuccess          CheckoutState = "SUCCESS"
	CheckoutError            CheckoutState = "ERROR"
)

// CheckoutAction is an input to the checkout state machine.
type CheckoutAction string

const (
	ActionStartCheckout CheckoutAction = "START_CHECKOUT"
	ActionSubmit        CheckoutAction = "SUBMIT"
	ActionValidated     CheckoutAction = "VALIDATED"
	ActionSubmitSuccess CheckoutAction = "SUBMIT_SUCCESS"
	ActionSubmitError   CheckoutAction = "SUBMIT_ERROR"
	ActionRetry         CheckoutAction = "RETRY"
	ActionCancel        CheckoutAction = "CANCEL"
	ActionReset         CheckoutAction = "RESET"
)

// checkoutTransitions is the complete transition table. Any pair missing
// here is illegal.
var checkoutTransitions = map[CheckoutState]map[CheckoutAction]CheckoutState{
	CheckoutIdle: {
		ActionStartCheckout: CheckoutSelectingDetails,
	},
	CheckoutSelectingDetails: {
		ActionSubmit: CheckoutValidating,
		ActionCancel: CheckoutIdle,
		ActionReset:  CheckoutIdle,
	},
	CheckoutValidating: {
		ActionValidated:   CheckoutSubmitting,
		ActionSubmitError: CheckoutError,
		ActionCancel:      CheckoutIdle,
		ActionReset:       CheckoutIdle,
	},
	CheckoutSubmitting: {
		ActionSubmitSuccess: CheckoutSuccess,
		ActionSubmitError:   CheckoutError,
		ActionCancel:        CheckoutIdle,
		ActionReset:         CheckoutIdle,
	},
	CheckoutSuccess: {
		ActionReset: CheckoutIdle,
	},
	CheckoutError: {
		ActionRetry:  CheckoutSelectingDetails,
		ActionCancel: CheckoutIdle,
		ActionReset:  CheckoutIdle,
	},
}

// NextCheckoutState returns the state reached by applying action in state.
// The second result is false when the pair is not in the table.
func NextCheckoutState(state CheckoutState, action CheckoutAction) (CheckoutState, bool) {
	next, ok := checkoutTransitions[state][action]
	return next, ok
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
