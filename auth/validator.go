package auth

import (
	"fmt"
	"market-chat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ContactRequest registers the address used for offline notifications.
type ContactRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func ValidateContact(req ContactRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return nil
}

// Validate checks the struct tags of any inbound payload.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return nil
}
