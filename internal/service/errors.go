package service

import (
	appErrors "github.com/noah-isme/uni-enrollment-api/pkg/errors"
	"github.com/noah-isme/uni-enrollment-api/pkg/validation"
)

const validationFailedMessage = "Validation failed"

// validationError converts validator output into a 422 carrying field details.
func validationError(err error) error {
	fields := validation.Fields(err)
	if fields == nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationFailedMessage)
	}
	appErr := appErrors.WithDetails(appErrors.ErrValidation, fields)
	appErr.Message = validationFailedMessage
	return appErr
}

// fieldError builds a 422 for a single field.
func fieldError(field, message string) error {
	appErr := appErrors.WithDetails(appErrors.ErrValidation, map[string][]string{field: {message}})
	appErr.Message = validationFailedMessage
	return appErr
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
