// Package validator provides rule-based checks for credential input.
//
// Rules are plain values combined with Apply, which returns a
// ValidationErrors collection or nil:
//
//	err := validator.Apply(
//		validator.Email("email", email),
//		validator.Password("password", password, validator.DefaultPasswordPolicy()),
//	)
//	if errors.Is(err, validator.ErrValidationFailed) {
//		fields := validator.ExtractValidationErrors(err)
//		_ = fields.Get("email")
//	}
package validator
