package billing

import "errors"

// Billing module errors.
var (
	// ErrInvalidAmount is returned for a non-positive amount to a credit
	// operation that requires positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientCredit is returned when the balance is below the
	// requested debit or gated credit cost.
	ErrInsufficientCredit = errors.New("not enough credits")

	// ErrNoActivePlan is returned by a feature check against an account
	// with no plan assigned.
	ErrNoActivePlan = errors.New("no active plan")

	// ErrFeatureNotAllowed is returned when the current plan's limits do
	// not include the requested feature.
	ErrFeatureNotAllowed = errors.New("feature not allowed on current plan")

	// ErrPlanNotFound is returned when a plan name is not in the catalog.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrAccountNotFound is returned when an account has never been touched.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidScope is returned for an operation without a usable
	// account identity.
	ErrInvalidScope = errors.New("account id and scope are required")

	// ErrMalformedReport is returned for an inbound usage report missing
	// required fields.
	ErrMalformedReport = errors.New("malformed usage report")
)
