package utils

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	Validator *validator.Validate
}

func NewCustomValidator() *CustomValidator {
	Validator := &CustomValidator{validator.New()}
	Validator.ValidatorRegistery()
	return Validator
}

func (c *CustomValidator) ValidatorRegistery() {
	c.Validator.RegisterValidation("isphone", c.IsValidPhone)
}

// RegisterBindingValidations makes the custom tags available to gin's ShouldBind*.
func RegisterBindingValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		(&CustomValidator{v}).ValidatorRegistery()
	}
}

// IsValidPhone accepts international numbers with 7 to 15 digits. A leading
// plus, spaces, dashes and parentheses are tolerated.
func (c *CustomValidator) IsValidPhone(fl validator.FieldLevel) bool {
	phoneNumber := strings.TrimSpace(fl.Field().String())
	digits := 0
	for i, char := range phoneNumber {
		switch {
		case unicode.IsDigit(char) && char <= unicode.MaxASCII:
			digits++
		case char == '+' && i == 0:
		case char == ' ' || char == '-' || char == '(' || char == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}
