// Package validator validates structures by the "validate" tags, with English error messages.
package validator

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// Rule is a custom validation rule.
type Rule struct {
	Tag  string
	Func validator.Func
}

func New(rules ...Rule) *Validator {
	validate := validator.New()

	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic(errors.New("en translator was not found"))
	}
	if err := enTranslation.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(errors.Errorf("translator was not registered: %w", err))
	}

	for _, rule := range rules {
		if err := validate.RegisterValidation(rule.Tag, rule.Func); err != nil {
			panic(err)
		}
	}

	// Use config key or JSON name in error messages
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		if field.Anonymous {
			return "__nested__"
		}
		if name := field.Tag.Get("configKey"); name != "" {
			return name
		}
		if name, _, _ := strings.Cut(field.Tag.Get("json"), ","); name != "" && name != "-" {
			return name
		}
		return field.Name
	})

	return &Validator{validate: validate, translator: translator}
}

// Validate a structure, all field errors are returned in one MultiError.
func (v *Validator) Validate(ctx context.Context, value any) error {
	err := v.validate.StructCtx(ctx, value)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := errors.NewMultiError()
	for _, e := range fieldErrs {
		path := fieldPath(e.Namespace())
		msg := strings.Replace(e.Translate(v.translator), e.Field(), `"`+path+`"`, 1)
		errs.Append(errors.New(msg))
	}
	return errs.ErrorOrNil()
}

// fieldPath removes the struct name and nested parts from the namespace.
func fieldPath(namespace string) string {
	namespace = strings.ReplaceAll(namespace, "__nested__.", "")
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}
