package validation

import (
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// addressShape is a syntactic pre-check only; network rules are applied by
// the network registry.
var addressShape = regexp.MustCompile(`^(0x[0-9a-z]+|[ft][0-4][0-9a-z]+)$`)

// New returns a configured validator with the filecoin_address tag registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	_ = v.RegisterValidation("filecoin_address", filecoinAddress)
	return v
}

func filecoinAddress(fl validatorv10.FieldLevel) bool {
	s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	if len(s) < 3 || len(s) > 128 {
		return false
	}
	return addressShape.MatchString(s)
}
