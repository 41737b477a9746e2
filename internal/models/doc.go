// Package models defines the core domain models for Velo.
//
// # Models
//
//   - Trip: a travel expense group with a base currency
//   - TripMember: a participant, real or placeholder
//   - Expense: a spend or settlement event that produces debt
//   - Split: one member's share of an expense
//   - MemberDebt: the central ledger entity — "debtor owes creditor amount
//     of currency"
//   - User: a registered account
//
// # Design Principles
//
//  1. All money fields are shopspring decimals; no binary floats anywhere.
//  2. Members are referenced by stable integer IDs; their lifecycle
//     (placeholder, claimed, admin) never affects ledger logic.
//  3. Avoid circular references: models carry IDs, not pointers.
package models
