package validate

import (
	"regexp"

	"github.com/akoun-dev/montoit-sub002/infra/config"
	"github.com/go-playground/validator/v10"
)

// E.164 with an optional leading + and 8 to 15 digits. Ivorian mobile
// money numbers arrive as +225XXXXXXXXXX but foreign payers exist too.
var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)

// CustomValidate registers the project's custom validators on the
// shared validator instance.
func CustomValidate() {
	v := config.App().Validator

	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
}
