package domain

import (
	"errors"
	"fmt"
)

// NotFoundError marks a missing Instance/Tenant/Contact reference.
// Never retried automatically.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func NewNotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

// IntegrationError marks a downstream gateway/platform call that failed
// after exhausting the component's fallback attempts.
type IntegrationError struct {
	Op  string
	Err error
}

func (e *IntegrationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("integration failure: %s", e.Op)
	}
	return fmt.Sprintf("integration failure: %s: %v", e.Op, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

func NewIntegrationError(op string, err error) error {
	return &IntegrationError{Op: op, Err: err}
}

func IsIntegrationError(err error) bool {
	var t *IntegrationError
	return errors.As(err, &t)
}

// UnauthorizedError marks invalid or expired credentials. For the
// platform this fires after one refresh attempt already failed.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

func NewUnauthorized(reason string) error {
	return &UnauthorizedError{Reason: reason}
}

func IsUnauthorized(err error) bool {
	var t *UnauthorizedError
	return errors.As(err, &t)
}
