package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/internal/infrastructure/persistence/tenant"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormLedgerProjection rebuilds statements, cashbook and bankbook from the
// invoice and payment rows. It only reads.
type GormLedgerProjection struct {
	db *gorm.DB
}

// NewGormLedgerProjection creates a new GormLedgerProjection
func NewGormLedgerProjection(db *gorm.DB) *GormLedgerProjection {
	return &GormLedgerProjection{db: db}
}

// PartyStatement lists every invoice and payment of a party with a running balance
func (r *GormLedgerProjection) PartyStatement(ctx context.Context, tenantID uuid.UUID, party ledger.PartyRef) (*ledger.PartyStatement, error) {
	db := GetDB(ctx, r.db)

	var partyRow models.PartyModel
	if err := db.Table(models.PartyTable(party.Kind)).
		Scopes(tenant.Scope(tenantID)).
		Where("id = ?", party.ID).
		Take(&partyRow).Error; err != nil {
		return nil, translateError(err, "load party")
	}

	var invoices []models.InvoiceModel
	if err := db.Table(models.InvoiceTable(party.Kind)).
		Scopes(tenant.Scope(tenantID)).
		Where("party_id = ?", party.ID).
		Order("invoice_date ASC").
		Order("created_at ASC").
		Order("sequence ASC").
		Find(&invoices).Error; err != nil {
		return nil, translateError(err, "load statement invoices")
	}

	var payments []models.PaymentModel
	if err := db.Scopes(tenant.Scope(tenantID)).
		Where("party_kind = ? AND party_id = ?", party.Kind, party.ID).
		Order("payment_date ASC").
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, translateError(err, "load statement payments")
	}

	numbers := make(map[uuid.UUID]string, len(invoices))
	lines := make([]ledger.StatementLine, 0, len(invoices)+len(payments))
	for _, inv := range invoices {
		numbers[inv.ID] = inv.InvoiceNumber
		lines = append(lines, ledger.StatementLine{
			Date:      inv.InvoiceDate,
			Kind:      ledger.StatementLineInvoice,
			Reference: inv.InvoiceNumber,
			InvoiceID: inv.ID,
			Debit:     inv.NetAmount,
			Credit:    decimal.Zero,
		})
	}
	for i := range payments {
		p := payments[i].ToDomain()
		ref := p.Reference()
		if ref == "" {
			ref = numbers[p.InvoiceID]
		}
		paymentID := p.ID
		lines = append(lines, ledger.StatementLine{
			Date:      p.PaymentDate,
			Kind:      ledger.StatementLinePayment,
			Reference: ref,
			InvoiceID: p.InvoiceID,
			PaymentID: &paymentID,
			Mode:      p.Mode,
			Debit:     decimal.Zero,
			Credit:    p.Amount,
		})
	}

	// invoices sort ahead of payments made on the same day
	sort.SliceStable(lines, func(i, j int) bool {
		di, dj := truncateDay(lines[i].Date), truncateDay(lines[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return lines[i].Kind == ledger.StatementLineInvoice && lines[j].Kind == ledger.StatementLinePayment
	})

	running := decimal.Zero
	for i := range lines {
		running = running.Add(lines[i].Debit).Sub(lines[i].Credit)
		lines[i].RunningBalance = running
	}

	return &ledger.PartyStatement{
		Party:           party,
		Name:            partyRow.Name,
		Lines:           lines,
		ClosingBalance:  running,
		RecordedBalance: partyRow.Balance,
	}, nil
}

// Cashbook lists cash payments between from and to, both days inclusive
func (r *GormLedgerProjection) Cashbook(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*ledger.Book, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("payment_mode = ?", ledger.PaymentModeCash)
	}
	return r.book(ctx, tenantID, from, to, scope)
}

// Bankbook lists bank settled payments into one bank account between from and to
func (r *GormLedgerProjection) Bankbook(ctx context.Context, tenantID, bankAccountID uuid.UUID, from, to time.Time) (*ledger.Book, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&models.BankAccountModel{}).
		Scopes(tenant.Scope(tenantID)).
		Where("id = ?", bankAccountID).
		Count(&count).Error; err != nil {
		return nil, translateError(err, "load bank account")
	}
	if count == 0 {
		return nil, shared.ErrNotFound.WithMessage("bank account not found")
	}

	var modes []ledger.PaymentMode
	for _, m := range ledger.AllPaymentModes() {
		if m.SettlesThroughBank() {
			modes = append(modes, m)
		}
	}
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("bank_account_id = ? AND payment_mode IN ?", bankAccountID, modes)
	}
	return r.book(ctx, tenantID, from, to, scope)
}

func (r *GormLedgerProjection) book(ctx context.Context, tenantID uuid.UUID, from, to time.Time, filter func(*gorm.DB) *gorm.DB) (*ledger.Book, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	from = truncateDay(from)
	end := truncateDay(to).AddDate(0, 0, 1)
	if !end.After(from) {
		return nil, shared.NewValidationError("to", "end date is before start date")
	}
	db := GetDB(ctx, r.db)

	var before []models.PaymentModel
	if err := db.Select("party_kind", "amount").
		Scopes(tenant.Scope(tenantID), filter).
		Where("payment_date < ?", from).
		Find(&before).Error; err != nil {
		return nil, translateError(err, "load opening balance")
	}
	opening := decimal.Zero
	for _, p := range before {
		opening = opening.Add(signed(p.PartyKind, p.Amount))
	}

	var rows []models.PaymentModel
	if err := db.Scopes(tenant.Scope(tenantID), filter).
		Where("payment_date >= ? AND payment_date < ?", from, end).
		Order("payment_date ASC").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, translateError(err, "load book entries")
	}

	running := opening
	entries := make([]ledger.BookEntry, len(rows))
	for i := range rows {
		p := rows[i].ToDomain()
		running = running.Add(signed(p.PartyKind, p.Amount))
		entries[i] = ledger.BookEntry{
			PaymentID:      p.ID,
			BatchID:        p.BatchID,
			Date:           p.PaymentDate,
			PartyKind:      p.PartyKind,
			PartyID:        p.PartyID,
			InvoiceID:      p.InvoiceID,
			Mode:           p.Mode,
			Reference:      p.Reference(),
			Direction:      ledger.DirectionFor(p.PartyKind),
			Amount:         p.Amount,
			RunningBalance: running,
		}
	}

	return &ledger.Book{
		From:           from,
		To:             truncateDay(to),
		OpeningBalance: opening,
		Entries:        entries,
		ClosingBalance: running,
	}, nil
}

type partyOutstanding struct {
	PartyID       uuid.UUID
	BalanceAmount decimal.Decimal
}

// AuditBalances reports parties whose stored balance differs from the sum of
// their invoice balances
func (r *GormLedgerProjection) AuditBalances(ctx context.Context, tenantID uuid.UUID) ([]ledger.BalanceDrift, error) {
	db := GetDB(ctx, r.db)
	drifts := make([]ledger.BalanceDrift, 0)

	for _, kind := range []ledger.PartyKind{ledger.PartyKindVendor, ledger.PartyKindRetailer} {
		var parties []models.PartyModel
		if err := db.Table(models.PartyTable(kind)).
			Scopes(tenant.Scope(tenantID)).
			Order("name ASC").
			Find(&parties).Error; err != nil {
			return nil, translateError(err, "load parties")
		}

		var balances []partyOutstanding
		if err := db.Table(models.InvoiceTable(kind)).
			Select("party_id", "balance_amount").
			Scopes(tenant.Scope(tenantID)).
			Find(&balances).Error; err != nil {
			return nil, translateError(err, "load invoice balances")
		}
		outstanding := make(map[uuid.UUID]decimal.Decimal, len(parties))
		for _, b := range balances {
			outstanding[b.PartyID] = outstanding[b.PartyID].Add(b.BalanceAmount)
		}

		for _, p := range parties {
			sum := outstanding[p.ID]
			if !p.Balance.Equal(sum) {
				drifts = append(drifts, ledger.BalanceDrift{
					Party:       ledger.PartyRef{Kind: kind, ID: p.ID},
					Name:        p.Name,
					Recorded:    p.Balance,
					Outstanding: sum,
				})
			}
		}
	}
	return drifts, nil
}

func signed(kind ledger.PartyKind, amount decimal.Decimal) decimal.Decimal {
	if ledger.DirectionFor(kind) == ledger.DirectionOut {
		return amount.Neg()
	}
	return amount
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var (
	_ ledger.LedgerProjection = (*GormLedgerProjection)(nil)
	_ ledger.BalanceAuditor   = (*GormLedgerProjection)(nil)
)

// ListTenantIDs returns every tenant owning a vendor or retailer, sorted
func (r *GormLedgerProjection) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	db := GetDB(ctx, r.db)
	seen := make(map[uuid.UUID]struct{})
	for _, kind := range []ledger.PartyKind{ledger.PartyKindVendor, ledger.PartyKindRetailer} {
		var ids []uuid.UUID
		if err := db.Table(models.PartyTable(kind)).Distinct("tenant_id").Pluck("tenant_id", &ids).Error; err != nil {
			return nil, translateError(err, "list tenants")
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
