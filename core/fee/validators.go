package fee

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/core"
)

var (
	paymentMethodTag  = "paymentmethod"
	paymentMethodText = "payment_method must be one of cash, card, upi, net_banking, cheque, bank_transfer"

	frequencyTag  = "frequency"
	frequencyText = "frequency must be one of one_time, monthly, quarterly, termly, annually"

	txnRequiredTag  = "txnrequired"
	txnRequiredText = "transaction_id is required for non-cash payments"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(paymentMethodTag, paymentMethodValidation)
	core.RegisterCustomTranslation(validate, translator, paymentMethodTag, paymentMethodText)

	_ = validate.RegisterValidation(frequencyTag, frequencyValidation)
	core.RegisterCustomTranslation(validate, translator, frequencyTag, frequencyText)

	validate.RegisterStructValidation(paymentStructValidation, NewPayment{})
	core.RegisterCustomTranslation(validate, translator, txnRequiredTag, txnRequiredText)
}

// paymentMethodValidation only allows the methods a payment can be recorded with by hand.
func paymentMethodValidation(fl validator.FieldLevel) bool {
	return PaymentMethod(fl.Field().String()).IsManual()
}

func frequencyValidation(fl validator.FieldLevel) bool {
	return Frequency(fl.Field().String()).IsValid()
}

// paymentStructValidation requires a transaction reference for every method except cash.
func paymentStructValidation(sl validator.StructLevel) {
	np, ok := sl.Current().Interface().(NewPayment)
	if !ok {
		return
	}
	if np.Method != MethodCash && np.TransactionID == "" {
		sl.ReportError(np.TransactionID, "transaction_id", "TransactionID", txnRequiredTag, "")
	}
}
