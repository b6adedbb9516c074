package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/interfaces/http/dto"
)

// SetupValidator registers the ledger rules on gin's validator
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return RegisterValidators(v)
}

// RegisterValidators adds json field naming, decimal support and the
// decimal_positive and payment_mode tags to v.
func RegisterValidators(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	// decimals validate as their string form; the zero value reads as empty
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			if d.IsZero() {
				return ""
			}
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	if err := v.RegisterValidation("decimal_positive", validateDecimalPositive); err != nil {
		return err
	}
	return v.RegisterValidation("payment_mode", validatePaymentMode)
}

func validateDecimalPositive(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.IsPositive() && d.Equal(d.Truncate(ledger.MaxAmountScale))
}

func validatePaymentMode(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return ledger.PaymentMode(strings.ToUpper(strings.TrimSpace(s))).IsValid()
}

// HandleBindError answers a failed ShouldBind with a 400 listing the fields
func HandleBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]dto.ValidationDetail, 0, len(verrs))
		for _, e := range verrs {
			details = append(details, dto.ValidationDetail{Field: e.Field(), Message: validationMessage(e)})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", GetRequestID(c), details))
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeInvalidJSON, "Malformed request body", GetRequestID(c)))
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "decimal_positive":
		return "Must be a positive amount with at most 2 decimal places"
	case "payment_mode":
		return "Must be one of CASH, BANK, CHEQUE, UPI, PAYMENT_LINK"
	case "datetime":
		return "Must be a date in " + e.Param() + " format"
	case "uuid":
		return "Invalid UUID format"
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "min":
		return "Must be at least " + e.Param()
	default:
		return "Invalid value"
	}
}
