package domain

import "errors"

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidHolding  = errors.New("invalid_holding")
	ErrZeroDelta       = errors.New("zero_delta")
	ErrNotFound        = errors.New("entry_not_found")
	ErrUnscopedQuery   = errors.New("unscoped_query")
)
