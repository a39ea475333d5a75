package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique-constraint violation on
// any supported dialect. Callers treat it as a lost race, not a failure.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}
