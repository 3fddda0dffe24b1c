// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"

	"github.com/superwasp/vespa/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	// Add context pairs
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error for unusable inputs
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// notFoundError creates a not-found error carrying the lookup key
func notFoundError(entity string, key any) error {
	return errors.Newf("%s not found", entity).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("entity", entity).
		Context("key", fmt.Sprintf("%v", key)).
		Build()
}
