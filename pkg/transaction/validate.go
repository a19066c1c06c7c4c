package transaction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validatePayment(p PaymentInformation) error {
	if p == nil {
		return fmt.Errorf("%w: payment information is required", ErrInvalidPaymentInformation)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPaymentInformation, describe(err))
	}
	return nil
}

func validateCharge(c ChargeInformation) error {
	if c.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidChargeInformation)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidChargeInformation, describe(err))
	}
	if c.Rebill != nil && c.Rebill.Amount.IsNegative() {
		return fmt.Errorf("%w: rebill amount must not be negative", ErrInvalidChargeInformation)
	}
	return nil
}

func validateRebill(r *Rebill) error {
	if r == nil {
		return nil
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("%w: rebill amount must not be negative", ErrInvalidChargeInformation)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidChargeInformation, describe(err))
	}
	return nil
}

// describe flattens validator field errors into "field:tag" pairs.
func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Namespace()+":"+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
