package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/campus-rims/incentive-engine/incentive"
)

var (
	requiredTag  = "required"
	requiredText = "this field is required"

	datetimeTag  = "datetime"
	datetimeText = "must be a date in YYYY-MM-DD format"
)

// RequestValidator checks request DTOs and reports problems by JSON field
// name.
type RequestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewRequestValidator builds a validator with English messages.
func NewRequestValidator() *RequestValidator {
	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerTranslation(validate, translator, requiredTag, requiredText)
	registerTranslation(validate, translator, datetimeTag, datetimeText)

	return &RequestValidator{validate: validate, translator: translator}
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Check validates v and converts failures to an incentive.ValidationError.
func (rv *RequestValidator) Check(v any) error {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &incentive.ValidationError{}
	for _, fe := range verrs {
		ve.Add(fieldPath(fe.Namespace()), "%s", fe.Translate(rv.translator))
	}
	return ve
}

// fieldPath drops the root struct name (and embedded struct names) from a
// validator namespace: "PreviewRequest.CalculateRequest.contributors[0].role"
// becomes "contributors[0].role".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	out := parts[:0]
	for i, p := range parts {
		if i == 0 || strings.HasSuffix(p, "Request") {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}
