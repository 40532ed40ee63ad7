package gateways

import (
	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
)

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidatePayload runs struct-tag validation over a decoded gateway payload.
// A failure here is a malformed delivery, which normalizers surface as an
// error rather than a signature-style verdict.
func ValidatePayload(payload any) error {
	if err := payloadValidator.Struct(payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook payload failed validation")
	}
	return nil
}
