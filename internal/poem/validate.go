package poem

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every record has a title and content.
func Validate(records []Record) error {
	var errs []error
	for i, r := range records {
		if err := validate.Struct(r); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					errs = append(errs, fmt.Errorf("poem %d: %s is %s", i, fe.Field(), fe.Tag()))
				}
				continue
			}
			errs = append(errs, fmt.Errorf("poem %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
