package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

const maxIDLength = 128

// validateID rejects ids that are empty, too long, or unusable as part of a
// storage key.
func validateID(field, id string) error {
	switch {
	case id == "":
		return domain.ErrValidationFailed.WithError(fmt.Errorf("%s is required", field))
	case len(id) > maxIDLength:
		return domain.ErrValidationFailed.WithError(fmt.Errorf("%s exceeds %d characters", field, maxIDLength))
	case strings.ContainsAny(id, `/\`), strings.Contains(id, ".."):
		return domain.ErrValidationFailed.WithError(fmt.Errorf("%s contains a path separator", field))
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return domain.ErrValidationFailed.WithError(fmt.Errorf("%s contains whitespace or control characters", field))
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
