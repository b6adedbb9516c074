package notification

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mandi/backend/internal/domain/ledger"
)

// Formatter renders payment messages with locale aware number grouping.
type Formatter struct {
	printer  *message.Printer
	currency currency.Unit
}

// NewFormatter builds a formatter for a BCP 47 locale such as "en-IN".
// Unknown locales fall back to Indian English and rupees.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse("en-IN")
	}
	unit, conf := currency.FromTag(tag)
	if conf == language.No {
		unit = currency.INR
	}
	return &Formatter{printer: message.NewPrinter(tag), currency: unit}
}

// Format renders the message for one payment row.
func (f *Formatter) Format(e *ledger.PaymentRecordedEvent) string {
	amount := f.money(e.Amount)
	balance := f.money(e.InvoiceBalance)
	date := e.PaymentDate.Format("02 Jan 2006")

	if e.PartyKind == ledger.PartyKindVendor {
		if e.InvoiceStatus == ledger.InvoiceStatusPaid {
			return f.printer.Sprintf("Dear %s, we have paid %s %s by %s on %s against purchase invoice %s. The invoice is now fully settled.",
				e.PartyName, f.currency, amount, e.Mode, date, e.InvoiceNumber)
		}
		return f.printer.Sprintf("Dear %s, we have paid %s %s by %s on %s against purchase invoice %s. %s %s remains due to you.",
			e.PartyName, f.currency, amount, e.Mode, date, e.InvoiceNumber, f.currency, balance)
	}
	if e.InvoiceStatus == ledger.InvoiceStatusPaid {
		return f.printer.Sprintf("Dear %s, we received %s %s by %s on %s against invoice %s. Thank you, the invoice is fully paid.",
			e.PartyName, f.currency, amount, e.Mode, date, e.InvoiceNumber)
	}
	return f.printer.Sprintf("Dear %s, we received %s %s by %s on %s against invoice %s. Balance due: %s %s.",
		e.PartyName, f.currency, amount, e.Mode, date, e.InvoiceNumber, f.currency, balance)
}

// money prints d with two decimals, grouping the whole part the way the
// locale does. The digits come from the decimal itself, never a float.
func (f *Formatter) money(d decimal.Decimal) string {
	r := d.Round(2)
	fixed := r.StringFixed(2)
	return f.printer.Sprintf("%d", r.Truncate(0).IntPart()) + "." + fixed[len(fixed)-2:]
}
