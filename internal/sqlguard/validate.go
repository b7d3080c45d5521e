// Package sqlguard holds the checks applied to synthesized SQL before it may
// reach a live database.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid sql query")

// AllowedKeywords are the statement prefixes accepted by Validate.
var AllowedKeywords = []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "WITH"}

type InvalidQueryError struct {
	Raw string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("Invalid SQL query generated: %s", strings.TrimSpace(e.Raw))
}

func (e *InvalidQueryError) Unwrap() error {
	return ErrInvalidQuery
}

// Validate trims raw and accepts it when it starts, case-insensitively, with
// one of AllowedKeywords. This is a prefix check only: stacked statements,
// comments after the keyword, and write statements all pass.
func Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)
	for _, keyword := range AllowedKeywords {
		if strings.HasPrefix(upper, keyword) {
			return trimmed, nil
		}
	}
	return "", &InvalidQueryError{Raw: raw}
}
