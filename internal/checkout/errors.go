package checkout

import "errors"

var (
	ErrIllegalTransition = errors.New("illegal transition of checkout state")
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
)
