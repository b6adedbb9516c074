// Package models contains the GORM persistence models for the ledger tables.
// Domain types in internal/domain stay free of ORM tags; each model converts
// to and from its domain counterpart with ToDomain / FromDomain.
//
// Files:
//   - base.go: shared identity, version and tenant columns
//   - ledger.go: parties, invoices, payments, bank accounts, payment requests
//   - outbox.go: transactional outbox rows
//
// Indexes and constraints live in the SQL migrations under migrations/.
// The tags here only carry column types so the same models can be
// auto-migrated onto SQLite in tests.
package models
