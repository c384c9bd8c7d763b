package common

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/johanforsgren/prdeck/internal/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidatePayload checks a decoded response struct, or each element of a
// decoded slice, against its `validate` tags.
func ValidatePayload(provider domain.ProviderType, endpoint string, v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return &domain.SchemaValidationError{Provider: provider, Endpoint: endpoint, Err: fmt.Errorf("empty response")}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		if err := payloadValidator().Struct(rv.Interface()); err != nil {
			return &domain.SchemaValidationError{Provider: provider, Endpoint: endpoint, Err: err}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i)
			for elem.Kind() == reflect.Pointer {
				if elem.IsNil() {
					return &domain.SchemaValidationError{Provider: provider, Endpoint: endpoint, Err: fmt.Errorf("element %d is null", i)}
				}
				elem = elem.Elem()
			}
			if elem.Kind() != reflect.Struct {
				continue
			}
			if err := payloadValidator().Struct(elem.Interface()); err != nil {
				return &domain.SchemaValidationError{Provider: provider, Endpoint: endpoint, Err: fmt.Errorf("element %d: %w", i, err)}
			}
		}
	}
	return nil
}

// DecodePayload unmarshals data into v and validates it. Both decode and
// validation failures are reported as schema errors.
func DecodePayload(provider domain.ProviderType, endpoint string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &domain.SchemaValidationError{Provider: provider, Endpoint: endpoint, Err: err}
	}
	return ValidatePayload(provider, endpoint, v)
}
