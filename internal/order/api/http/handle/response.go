package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/models"

	"github.com/go-playground/validator/v10"
)

var errInternal = errors.New("internal server error")

// jsonResponse writes data as JSON with the specified HTTP status code.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes an error response as JSON with the specified HTTP status code.
func jsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidAddress):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrSequenceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrOrderTransitionInvalid):
		return http.StatusConflict
	case errors.Is(err, core.ErrOrderNotFound), errors.Is(err, core.ErrRegionNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidItems), errors.Is(err, models.ErrInvalidCustomer):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// validate runs the struct tags and flattens the field errors into one message.
func validate(ctx context.Context, v *validator.Validate, payload interface{}) error {
	err := v.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}

	var errorFields validator.ValidationErrors
	if !errors.As(err, &errorFields) {
		return err
	}
	errMessages := make([]string, len(errorFields))
	for k, errorField := range errorFields {
		errMessages[k] = fmt.Sprintf("invalid '%s' with value '%v'", errorField.Namespace(), errorField.Value())
	}
	return errors.New(strings.Join(errMessages, ", "))
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.New("failed to parse JSON")
	}
	return nil
}
