package xlsx

import (
	"errors"

	"github.com/odyssey-erp/asreported/internal/consol"
	"github.com/odyssey-erp/asreported/internal/statement"
)

// IsInputError reports whether err was caused by the workbook content rather
// than by infrastructure. Retrying such a run cannot succeed.
func IsInputError(err error) bool {
	switch {
	case consol.IsDataError(err),
		errors.Is(err, statement.ErrNoSources),
		errors.Is(err, statement.ErrDuplicateItem),
		errors.Is(err, statement.ErrInvalidInput),
		errors.Is(err, ErrOpen),
		errors.Is(err, ErrMetadataMissing),
		errors.Is(err, ErrMissingColumns),
		errors.Is(err, ErrSheetMissing),
		errors.Is(err, ErrInvalidValue):
		return true
	default:
		return false
	}
}
