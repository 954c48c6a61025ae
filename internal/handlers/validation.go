package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var errInvalidPayload = errors.New("invalid payload")

// decodeAndValidate decodes a JSON body into dst and runs its validate tags.
// The returned error is safe to echo to the client.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errInvalidPayload
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return fmt.Errorf("invalid field %q (%s)", first.Field(), first.Tag())
		}
		return errInvalidPayload
	}
	return nil
}
