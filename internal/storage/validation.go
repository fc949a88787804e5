// Package storage persists pipeline state in a local SQLite database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/rfm-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrEmptySlice      = errors.New("slice cannot be empty")
	ErrInvalidStage    = errors.New("invalid stage")
	ErrInvalidCustomer = errors.New("invalid customer")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateStage(stage model.Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStage, int(stage))
	}
	return nil
}

// validateCustomers checks every row against the fields the stage owns and
// rejects duplicate ids.
func validateCustomers(stage model.Stage, customers []model.Customer) error {
	if customers == nil {
		return fmt.Errorf("%w: customers", ErrNilParameter)
	}
	if len(customers) == 0 {
		return fmt.Errorf("%w: customers", ErrEmptySlice)
	}

	seen := make(map[string]struct{}, len(customers))
	for i := range customers {
		c := &customers[i]
		if err := c.Validate(stage); err != nil {
			return fmt.Errorf("%w at index %d: %v", ErrInvalidCustomer, i, err)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate customer id %q", ErrInvalidCustomer, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
