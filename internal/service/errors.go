package service

import "errors"

var (
	// ErrUnauthorized is returned when a session may not use the cart
	ErrUnauthorized = errors.New("login required")

	// ErrEmptyCart is returned when checkout is attempted with a zero total
	ErrEmptyCart = errors.New("cart is empty")

	// ErrCartBusy is returned when the per-session cart lock could not be taken
	ErrCartBusy = errors.New("cart is being updated, retry")

	ErrProductNotFound = errors.New("product not found")
)
