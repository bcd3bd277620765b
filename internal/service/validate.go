package service

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	apperrors "mediation_desk/pkg/errors"
)

var validate = validator.New()

func validateInput(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrBadRequest, err.Error())
	}
	return nil
}
