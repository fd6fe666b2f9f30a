package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its `validate` struct tags. The teacher's own
// pkg/config.Config carries the same tags but the pack never wires
// go-playground/validator in to enforce them; chanrpc's loader does.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("%s", formatValidationErrors(verrs))
		}
		return err
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed %q validation (value=%v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return msg
}
