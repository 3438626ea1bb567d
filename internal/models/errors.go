package models

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrInvalidPlan       = errors.New("invalid plan")
	ErrPlanNotConfigured = errors.New("plan price is not configured")
	ErrMissingMetadata   = errors.New("checkout session metadata is missing or invalid")
	ErrSignature         = errors.New("invalid webhook signature")
	ErrNotFound          = errors.New("not found")
	ErrUpstream          = errors.New("payment provider failure")
	ErrPersistence       = errors.New("persistence failure")
)
