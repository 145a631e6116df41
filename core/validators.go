package core

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"
)

var (
	// MaxAmount is the largest monetary amount accepted anywhere in the ledger.
	MaxAmount = decimal.RequireFromString("9999999.99")

	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	moneyTag  = "money"
	moneyText = "{0} must be greater than 0 and at most 9999999.99, with at most 2 decimal places"

	nonNegMoneyTag  = "money0"
	nonNegMoneyText = "{0} must be between 0 and 9999999.99, with at most 2 decimal places"

	notFutureTag  = "notfuture"
	notFutureText = "{0} cannot be in the future"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// amounts are validated as their canonical string
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(moneyTag, moneyValidation)
	RegisterCustomTranslation(validate, translator, moneyTag, moneyText)

	_ = validate.RegisterValidation(nonNegMoneyTag, nonNegMoneyValidation)
	RegisterCustomTranslation(validate, translator, nonNegMoneyTag, nonNegMoneyText)

	_ = validate.RegisterValidation(notFutureTag, notFutureValidation)
	RegisterCustomTranslation(validate, translator, notFutureTag, notFutureText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// ValidMoney reports whether `amt` is a strictly positive amount within MaxAmount, in cents.
func ValidMoney(amt decimal.Decimal) bool {
	return amt.IsPositive() && amt.LessThanOrEqual(MaxAmount) && hasCents(amt)
}

func hasCents(amt decimal.Decimal) bool {
	return amt.Equal(amt.Round(2))
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func parseMoneyField(fl validator.FieldLevel) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

// moneyValidation only allows amounts in ]0, MaxAmount] with at most 2 decimal places.
func moneyValidation(fl validator.FieldLevel) bool {
	d, ok := parseMoneyField(fl)
	return ok && ValidMoney(d)
}

// nonNegMoneyValidation only allows amounts in [0, MaxAmount] with at most 2 decimal places.
func nonNegMoneyValidation(fl validator.FieldLevel) bool {
	d, ok := parseMoneyField(fl)
	return ok && !d.IsNegative() && d.LessThanOrEqual(MaxAmount) && hasCents(d)
}

// notFutureValidation only allows dates on or before today (UTC).
func notFutureValidation(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return !TruncateDay(t).After(Today())
}
