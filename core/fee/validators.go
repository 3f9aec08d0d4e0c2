package fee

import (
	"regexp"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolfees/core"
)

var (
	paymentModeTag  = "paymentmode"
	paymentModeText = "invalid payment mode"

	academicYearTag   = "academicyear"
	academicYearText  = "academic year must span two consecutive years, e.g. 2024-2025"
	academicYearRegex = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

	initialAmountTag  = "initialamount"
	initialAmountText = "initial amount cannot exceed the total fees"
)

// InitValidators registers the fee validation tags & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(paymentModeTag, paymentModeValidation)
	core.RegisterCustomTranslation(validate, translator, paymentModeTag, paymentModeText)

	_ = validate.RegisterValidation(academicYearTag, academicYearValidation)
	core.RegisterCustomTranslation(validate, translator, academicYearTag, academicYearText)

	validate.RegisterStructValidation(ledgerStructValidation, NewLedger{})
	core.RegisterCustomTranslation(validate, translator, initialAmountTag, initialAmountText)
}

// Custom Validators

// paymentModeValidation checks that the field is one of PaymentModes.
func paymentModeValidation(fl validator.FieldLevel) bool {
	mode := fl.Field().String()
	for _, m := range PaymentModes {
		if m == mode {
			return true
		}
	}
	return false
}

// academicYearValidation accepts "YYYY-YYYY" where the second year follows the first.
func academicYearValidation(fl validator.FieldLevel) bool {
	m := academicYearRegex.FindStringSubmatch(fl.Field().String())
	if m == nil {
		return false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	return end == start+1
}

// ledgerStructValidation checks that NewLedger.InitialAmount does not exceed the fees it covers.
func ledgerStructValidation(sl validator.StructLevel) {
	if nl, ok := sl.Current().Interface().(NewLedger); ok {
		if nl.InitialAmount > nl.baseTotal() {
			sl.ReportError(nl.InitialAmount, "initial_amount", "InitialAmount", initialAmountTag, "")
		}
	}
}
