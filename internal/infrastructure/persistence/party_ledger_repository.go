package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/internal/infrastructure/persistence/tenant"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPartyLedger implements ledger.PartyLedger and ledger.InvoiceReader for one party kind.
// Vendors and retailers share the row shape and differ only in table names.
type GormPartyLedger struct {
	db           *gorm.DB
	kind         ledger.PartyKind
	partyTable   string
	invoiceTable string
}

// NewVendorLedger returns the ledger over vendors and purchase invoices
func NewVendorLedger(db *gorm.DB) *GormPartyLedger {
	return newPartyLedger(db, ledger.PartyKindVendor)
}

// NewRetailerLedger returns the ledger over retailers and sales invoices
func NewRetailerLedger(db *gorm.DB) *GormPartyLedger {
	return newPartyLedger(db, ledger.PartyKindRetailer)
}

func newPartyLedger(db *gorm.DB, kind ledger.PartyKind) *GormPartyLedger {
	return &GormPartyLedger{
		db:           db,
		kind:         kind,
		partyTable:   models.PartyTable(kind),
		invoiceTable: models.InvoiceTable(kind),
	}
}

// Kind returns the party kind this ledger serves
func (r *GormPartyLedger) Kind() ledger.PartyKind {
	return r.kind
}

// FindParty loads the party row and holds its lock until the transaction ends
func (r *GormPartyLedger) FindParty(ctx context.Context, tenantID, partyID uuid.UUID) (*ledger.Party, error) {
	var model models.PartyModel
	err := GetDB(ctx, r.db).Table(r.partyTable).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(tenant.Scope(tenantID)).
		Where("id = ?", partyID).
		Take(&model).Error
	if err != nil {
		return nil, translateError(err, "find party")
	}
	return model.ToDomain(r.kind), nil
}

// OutstandingInvoices returns the party's unsettled invoices, oldest first.
// Ties on invoice date fall back to insertion order, never to amount or id.
func (r *GormPartyLedger) OutstandingInvoices(ctx context.Context, tenantID, partyID uuid.UUID) ([]*ledger.Invoice, error) {
	var rows []models.InvoiceModel
	err := GetDB(ctx, r.db).Table(r.invoiceTable).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(tenant.Scope(tenantID)).
		Where("party_id = ? AND balance_amount > 0", partyID).
		Order("invoice_date ASC").
		Order("created_at ASC").
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "list outstanding invoices")
	}
	return r.toInvoices(rows), nil
}

// ApplyAllocation applies amount to invoice and writes it back.
// The write is conditional on the version read under lock; a lost race
// surfaces as shared.ErrConcurrencyConflict.
func (r *GormPartyLedger) ApplyAllocation(ctx context.Context, invoice *ledger.Invoice, amount decimal.Decimal) error {
	if invoice.Kind != r.kind.InvoiceKind() {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("invoice %s is not a %s invoice", invoice.InvoiceNumber, r.kind.InvoiceKind()))
	}
	readVersion := invoice.Version
	if err := invoice.ApplyPayment(amount); err != nil {
		return err
	}
	if err := invoice.CheckInvariants(); err != nil {
		return err
	}

	result := GetDB(ctx, r.db).Table(r.invoiceTable).
		Scopes(tenant.Scope(invoice.TenantID)).
		Where("id = ? AND version = ?", invoice.ID, readVersion).
		Updates(map[string]any{
			"paid_amount":    invoice.PaidAmount,
			"balance_amount": invoice.BalanceAmount,
			"status":         invoice.Status,
			"version":        invoice.Version,
			"updated_at":     invoice.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, "update invoice")
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict.WithMessage(fmt.Sprintf("invoice %s changed during allocation", invoice.InvoiceNumber))
	}
	return nil
}

// AdjustPartyBalance adds delta to the stored balance in one statement
func (r *GormPartyLedger) AdjustPartyBalance(ctx context.Context, tenantID, partyID uuid.UUID, delta decimal.Decimal) error {
	result := GetDB(ctx, r.db).Table(r.partyTable).
		Scopes(tenant.Scope(tenantID)).
		Where("id = ?", partyID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return translateError(result.Error, "adjust party balance")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound.WithMessage(fmt.Sprintf("%s not found", r.kind))
	}
	return nil
}

// FindInvoices loads invoices by id in the same order OutstandingInvoices
// allocates them. Only kind matching this ledger is served.
func (r *GormPartyLedger) FindInvoices(ctx context.Context, tenantID uuid.UUID, kind ledger.InvoiceKind, ids []uuid.UUID) ([]*ledger.Invoice, error) {
	if kind != r.kind.InvoiceKind() {
		return nil, shared.NewValidationError("kind", fmt.Sprintf("%s ledger cannot read %s invoices", r.kind, kind))
	}
	if len(ids) == 0 {
		return []*ledger.Invoice{}, nil
	}
	var rows []models.InvoiceModel
	err := GetDB(ctx, r.db).Table(r.invoiceTable).
		Scopes(tenant.Scope(tenantID)).
		Where("id IN ?", ids).
		Order("invoice_date ASC").
		Order("created_at ASC").
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "find invoices")
	}
	return r.toInvoices(rows), nil
}

// CreateParty inserts a party row. Party maintenance is otherwise owned elsewhere;
// this exists for seeding and tests.
func (r *GormPartyLedger) CreateParty(ctx context.Context, party *ledger.Party) error {
	if party.Kind != r.kind {
		return shared.NewValidationError("kind", "party kind does not match ledger")
	}
	err := GetDB(ctx, r.db).Table(r.partyTable).Create(models.PartyModelFromDomain(party)).Error
	return translateError(err, "create party")
}

// CreateInvoice inserts an invoice row and raises the party balance with it
func (r *GormPartyLedger) CreateInvoice(ctx context.Context, invoice *ledger.Invoice) error {
	if invoice.Kind != r.kind.InvoiceKind() {
		return shared.NewValidationError("kind", "invoice kind does not match ledger")
	}
	if invoice.Sequence == 0 {
		invoice.Sequence = time.Now().UnixNano()
	}
	if err := GetDB(ctx, r.db).Table(r.invoiceTable).Create(models.InvoiceModelFromDomain(invoice)).Error; err != nil {
		return translateError(err, "create invoice")
	}
	return r.AdjustPartyBalance(ctx, invoice.TenantID, invoice.PartyID, invoice.BalanceAmount)
}

func (r *GormPartyLedger) toInvoices(rows []models.InvoiceModel) []*ledger.Invoice {
	kind := r.kind.InvoiceKind()
	invoices := make([]*ledger.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].ToDomain(kind)
	}
	return invoices
}

var (
	_ ledger.PartyLedger   = (*GormPartyLedger)(nil)
	_ ledger.InvoiceReader = (*GormPartyLedger)(nil)
)
