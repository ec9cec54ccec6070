// Package serde encapsulates serialization and validation of values stored in etcd.
package serde

import (
	"context"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/keboola/go-cluster-filesync/internal/pkg/encoding/json"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

type EncodeFn func(ctx context.Context, value any) (string, error)

type DecodeFn func(ctx context.Context, data []byte, target any) error

type ValidateFn func(ctx context.Context, value any) error

// Serde encodes a typed value to the etcd value and back.
// The value is validated before encoding and after decoding.
type Serde struct {
	encode   EncodeFn
	decode   DecodeFn
	validate ValidateFn
}

func New(encode EncodeFn, decode DecodeFn, validate ValidateFn) *Serde {
	if validate == nil {
		validate = NoValidation
	}
	return &Serde{encode: encode, decode: decode, validate: validate}
}

// NewJSON creates JSON serialization, struct values are validated by the "validate" tags.
func NewJSON(validate ValidateFn) *Serde {
	return New(
		func(_ context.Context, value any) (string, error) {
			return json.EncodeString(value, false)
		},
		func(_ context.Context, data []byte, target any) error {
			return json.Decode(data, target)
		},
		validate,
	)
}

func NoValidation(_ context.Context, _ any) error {
	return nil
}

// StructValidation validates struct values using the go-playground/validator tags.
func StructValidation() ValidateFn {
	v := validator.New()
	return func(ctx context.Context, value any) error {
		rv := reflect.Indirect(reflect.ValueOf(value))
		if rv.Kind() != reflect.Struct {
			return nil
		}
		if err := v.StructCtx(ctx, rv.Interface()); err != nil {
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				return err
			}
			out := errors.NewMultiError()
			for _, fieldErr := range fieldErrs {
				out.Append(errors.Errorf(`"%s" failed on the "%s" rule`, fieldErr.Namespace(), fieldErr.Tag()))
			}
			return out.ErrorOrNil()
		}
		return nil
	}
}

func (v *Serde) Encode(ctx context.Context, value any) (string, error) {
	if err := v.validate(ctx, value); err != nil {
		return "", err
	}
	return v.encode(ctx, value)
}

func (v *Serde) Decode(ctx context.Context, data []byte, target any) error {
	if err := v.decode(ctx, data, target); err != nil {
		return err
	}
	return v.validate(ctx, target)
}
