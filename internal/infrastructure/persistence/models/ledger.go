package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// Table names
const (
	TableVendors          = "vendors"
	TableRetailers        = "retailers"
	TablePurchaseInvoices = "purchase_invoices"
	TableSalesInvoices    = "sales_invoices"
	TablePayments         = "payments"
	TableBankAccounts     = "bank_accounts"
	TablePaymentRequests  = "payment_requests"
)

// PartyTable returns the table holding parties of kind
func PartyTable(kind ledger.PartyKind) string {
	if kind == ledger.PartyKindVendor {
		return TableVendors
	}
	return TableRetailers
}

// InvoiceTable returns the table holding invoices raised against parties of kind
func InvoiceTable(kind ledger.PartyKind) string {
	if kind == ledger.PartyKindVendor {
		return TablePurchaseInvoices
	}
	return TableSalesInvoices
}

// PartyModel is the row shape shared by the vendors and retailers tables.
// It has no TableName; callers pick the table with PartyTable.
type PartyModel struct {
	TenantAggregateModel
	Name         string          `gorm:"type:varchar(200);not null"`
	Phone        string          `gorm:"type:varchar(20)"`
	Balance      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CrateBalance int             `gorm:"not null"`
	IsActive     bool            `gorm:"not null"`
}

// ToDomain converts the row to a Party of kind
func (m *PartyModel) ToDomain(kind ledger.PartyKind) *ledger.Party {
	return &ledger.Party{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		Kind:                kind,
		Name:                m.Name,
		Phone:               m.Phone,
		Balance:             m.Balance,
		CrateBalance:        m.CrateBalance,
		IsActive:            m.IsActive,
	}
}

// PartyModelFromDomain creates a row from a Party
func PartyModelFromDomain(p *ledger.Party) *PartyModel {
	m := &PartyModel{
		Name:         p.Name,
		Phone:        p.Phone,
		Balance:      p.Balance,
		CrateBalance: p.CrateBalance,
		IsActive:     p.IsActive,
	}
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	return m
}

// InvoiceModel is the row shape shared by purchase_invoices and sales_invoices
type InvoiceModel struct {
	TenantAggregateModel
	PartyID       uuid.UUID            `gorm:"type:uuid;not null"`
	InvoiceNumber string               `gorm:"type:varchar(50);not null"`
	InvoiceDate   time.Time            `gorm:"not null"`
	Sequence      int64                `gorm:"not null"`
	NetAmount     decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	PaidAmount    decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	BalanceAmount decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Status        ledger.InvoiceStatus `gorm:"type:varchar(20);not null"`
}

// ToDomain converts the row to an Invoice of kind
func (m *InvoiceModel) ToDomain(kind ledger.InvoiceKind) *ledger.Invoice {
	return &ledger.Invoice{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		Kind:                kind,
		PartyID:             m.PartyID,
		InvoiceNumber:       m.InvoiceNumber,
		InvoiceDate:         m.InvoiceDate,
		Sequence:            m.Sequence,
		NetAmount:           m.NetAmount,
		PaidAmount:          m.PaidAmount,
		BalanceAmount:       m.BalanceAmount,
		Status:              m.Status,
	}
}

// InvoiceModelFromDomain creates a row from an Invoice
func InvoiceModelFromDomain(inv *ledger.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		PartyID:       inv.PartyID,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		Sequence:      inv.Sequence,
		NetAmount:     inv.NetAmount,
		PaidAmount:    inv.PaidAmount,
		BalanceAmount: inv.BalanceAmount,
		Status:        inv.Status,
	}
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	return m
}

// PaymentModel maps an immutable payment row
type PaymentModel struct {
	BaseModel
	TenantID       uuid.UUID          `gorm:"type:uuid;not null"`
	BatchID        uuid.UUID          `gorm:"type:uuid;not null"`
	PartyKind      ledger.PartyKind   `gorm:"type:varchar(20);not null"`
	PartyID        uuid.UUID          `gorm:"type:uuid;not null"`
	InvoiceID      uuid.UUID          `gorm:"type:uuid;not null"`
	Amount         decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	PaymentMode    ledger.PaymentMode `gorm:"type:varchar(20);not null"`
	PaymentDate    time.Time          `gorm:"not null"`
	BankAccountID  *uuid.UUID         `gorm:"type:uuid"`
	ChequeNumber   string             `gorm:"type:varchar(50)"`
	UPIReference   string             `gorm:"column:upi_reference;type:varchar(100)"`
	PaymentLinkID  string             `gorm:"type:varchar(100)"`
	Notes          string             `gorm:"type:text"`
	IdempotencyKey string             `gorm:"type:varchar(128)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return TablePayments
}

// ToDomain converts the row to a Payment
func (m *PaymentModel) ToDomain() *ledger.Payment {
	return &ledger.Payment{
		BaseEntity:     m.BaseModel.ToDomain(),
		TenantID:       m.TenantID,
		BatchID:        m.BatchID,
		PartyKind:      m.PartyKind,
		PartyID:        m.PartyID,
		InvoiceID:      m.InvoiceID,
		Amount:         m.Amount,
		Mode:           m.PaymentMode,
		PaymentDate:    m.PaymentDate,
		BankAccountID:  m.BankAccountID,
		ChequeNumber:   m.ChequeNumber,
		UPIReference:   m.UPIReference,
		PaymentLinkID:  m.PaymentLinkID,
		Notes:          m.Notes,
		IdempotencyKey: m.IdempotencyKey,
	}
}

// PaymentModelFromDomain creates a row from a Payment
func PaymentModelFromDomain(p *ledger.Payment) *PaymentModel {
	m := &PaymentModel{
		TenantID:       p.TenantID,
		BatchID:        p.BatchID,
		PartyKind:      p.PartyKind,
		PartyID:        p.PartyID,
		InvoiceID:      p.InvoiceID,
		Amount:         p.Amount,
		PaymentMode:    p.Mode,
		PaymentDate:    p.PaymentDate,
		BankAccountID:  p.BankAccountID,
		ChequeNumber:   p.ChequeNumber,
		UPIReference:   p.UPIReference,
		PaymentLinkID:  p.PaymentLinkID,
		Notes:          p.Notes,
		IdempotencyKey: p.IdempotencyKey,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// BankAccountModel maps a tenant bank account
type BankAccountModel struct {
	TenantAggregateModel
	Name          string `gorm:"type:varchar(100);not null"`
	AccountNumber string `gorm:"type:varchar(34);not null"`
	IFSC          string `gorm:"column:ifsc;type:varchar(11)"`
	IsActive      bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BankAccountModel) TableName() string {
	return TableBankAccounts
}

// PaymentRequestModel maps an idempotency record
type PaymentRequestModel struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_payment_requests_tenant_key,priority:1"`
	IdempotencyKey string           `gorm:"type:varchar(128);not null;uniqueIndex:idx_payment_requests_tenant_key,priority:2"`
	BatchID        uuid.UUID        `gorm:"type:uuid;not null"`
	PartyKind      ledger.PartyKind `gorm:"type:varchar(20);not null"`
	PartyID        uuid.UUID        `gorm:"type:uuid;not null"`
	Amount         decimal.Decimal  `gorm:"type:decimal(18,2);not null"`
	Allocated      decimal.Decimal  `gorm:"type:decimal(18,2);not null"`
	Remainder      decimal.Decimal  `gorm:"type:decimal(18,2);not null"`
	CreatedAt      time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentRequestModel) TableName() string {
	return TablePaymentRequests
}

// ToDomain converts the row to a PaymentRequestRecord
func (m *PaymentRequestModel) ToDomain() *ledger.PaymentRequestRecord {
	return &ledger.PaymentRequestRecord{
		ID:             m.ID,
		TenantID:       m.TenantID,
		IdempotencyKey: m.IdempotencyKey,
		BatchID:        m.BatchID,
		PartyKind:      m.PartyKind,
		PartyID:        m.PartyID,
		Amount:         m.Amount,
		Allocated:      m.Allocated,
		Remainder:      m.Remainder,
		CreatedAt:      m.CreatedAt,
	}
}

// PaymentRequestModelFromDomain creates a row from a PaymentRequestRecord
func PaymentRequestModelFromDomain(r *ledger.PaymentRequestRecord) *PaymentRequestModel {
	return &PaymentRequestModel{
		ID:             r.ID,
		TenantID:       r.TenantID,
		IdempotencyKey: r.IdempotencyKey,
		BatchID:        r.BatchID,
		PartyKind:      r.PartyKind,
		PartyID:        r.PartyID,
		Amount:         r.Amount,
		Allocated:      r.Allocated,
		Remainder:      r.Remainder,
		CreatedAt:      r.CreatedAt,
	}
}
