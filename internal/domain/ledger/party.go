package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PartyKind distinguishes the two counterparties of the market
type PartyKind string

const (
	PartyKindVendor   PartyKind = "VENDOR"   // supplies produce, paid against purchase invoices
	PartyKindRetailer PartyKind = "RETAILER" // buys produce, pays against sales invoices
)

// IsValid checks if the kind is known
func (k PartyKind) IsValid() bool {
	return k == PartyKindVendor || k == PartyKindRetailer
}

// String returns the string representation
func (k PartyKind) String() string {
	return string(k)
}

// InvoiceKind returns the kind of invoice raised against this party kind
func (k PartyKind) InvoiceKind() InvoiceKind {
	if k == PartyKindVendor {
		return InvoiceKindPurchase
	}
	return InvoiceKindSales
}

// ParsePartyKind parses "vendor"/"retailer" in any case
func ParsePartyKind(s string) (PartyKind, error) {
	k := PartyKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", shared.NewValidationError("party_kind", fmt.Sprintf("unknown party kind %q", s))
	}
	return k, nil
}

// PartyRef identifies a party of a given kind
type PartyRef struct {
	Kind PartyKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// EntityRef returns the reference checked by the tenant guard
func (r PartyRef) EntityRef() shared.EntityRef {
	if r.Kind == PartyKindVendor {
		return shared.EntityRef{Kind: RefVendor, ID: r.ID}
	}
	return shared.EntityRef{Kind: RefRetailer, ID: r.ID}
}

// Entity kinds understood by the tenant guard
const (
	RefVendor          = "vendor"
	RefRetailer        = "retailer"
	RefBankAccount     = "bank_account"
	RefPurchaseInvoice = "purchase_invoice"
	RefSalesInvoice    = "sales_invoice"
)

// Party is a vendor or retailer.
// Balance is the amount still outstanding on the party's invoices.
type Party struct {
	shared.TenantAggregateRoot
	Kind         PartyKind
	Name         string
	Phone        string
	Balance      decimal.Decimal
	CrateBalance int
	IsActive     bool
}

// NewParty creates an active party with a zero balance
func NewParty(tenantID uuid.UUID, kind PartyKind, name, phone string) (*Party, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if !kind.IsValid() {
		return nil, shared.NewValidationError("kind", "party kind is not valid")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("name", "party name cannot be empty")
	}
	return &Party{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Kind:                kind,
		Name:                name,
		Phone:               strings.TrimSpace(phone),
		Balance:             decimal.Zero,
		IsActive:            true,
	}, nil
}

// Ref returns the party reference
func (p *Party) Ref() PartyRef {
	return PartyRef{Kind: p.Kind, ID: p.ID}
}

// EnsureCanReceivePayment rejects payments against inactive parties
func (p *Party) EnsureCanReceivePayment() error {
	if !p.IsActive {
		return ErrPartyInactive.WithMessage(fmt.Sprintf("%s %s is inactive", strings.ToLower(string(p.Kind)), p.Name))
	}
	return nil
}

// AddInvoiceAmount raises the balance when an invoice is booked against the party
func (p *Party) AddInvoiceAmount(amount decimal.Decimal) {
	p.Balance = p.Balance.Add(amount)
	p.IncrementVersion()
}

// ApplySettlement lowers the balance by the amount allocated to its invoices
func (p *Party) ApplySettlement(amount decimal.Decimal) {
	p.Balance = p.Balance.Sub(amount)
	p.IncrementVersion()
}

// Deactivate marks the party inactive
func (p *Party) Deactivate() {
	p.IsActive = false
	p.IncrementVersion()
}
