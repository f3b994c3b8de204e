package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type phoneInput struct {
	Phone string `validate:"isphone"`
}

func TestIsValidPhone(t *testing.T) {
	v := NewCustomValidator()

	for _, phone := range []string{"15551234567", "+1 555 123 4567", "+44 (20) 7946-0958", "1234567"} {
		assert.NoError(t, v.Validator.Struct(phoneInput{phone}), phone)
	}
	for _, phone := range []string{"", "123456", "1234567890123456", "555-CALL-NOW", "1+5551234567", "١٢٣٤٥٦٧٨"} {
		assert.Error(t, v.Validator.Struct(phoneInput{phone}), phone)
	}
}
