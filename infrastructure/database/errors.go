package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// NotFoundError indicates a row was not found.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Table, e.ID)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(table, id string) *NotFoundError {
	return &NotFoundError{Table: table, ID: id}
}

// IsNotFound reports whether err is a row-not-found of any flavor.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, sql.ErrNoRows)
}
