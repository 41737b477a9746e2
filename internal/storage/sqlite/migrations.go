package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
//
// The unique index on member_debts backs the ledger's single-row-per-key
// invariant as defense in depth; the ledger itself enforces it through
// read-modify-write under a per-trip lock.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    base_currency TEXT NOT NULL,
    simplify_debts INTEGER NOT NULL DEFAULT 0,
    total_spent TEXT NOT NULL DEFAULT '0',
    expense_count INTEGER NOT NULL DEFAULT 0,
    created_by TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trip_members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trip_id INTEGER NOT NULL,
    user_id TEXT,
    nickname TEXT NOT NULL,
    is_placeholder INTEGER NOT NULL DEFAULT 0,
    is_admin INTEGER NOT NULL DEFAULT 0,
    total_owed_base TEXT NOT NULL DEFAULT '0',
    total_owed_to_base TEXT NOT NULL DEFAULT '0',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expenses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trip_id INTEGER NOT NULL,
    description TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    exchange_rate_to_base TEXT NOT NULL DEFAULT '1',
    paid_by_member_id INTEGER NOT NULL,
    expense_type TEXT NOT NULL DEFAULT 'expense',
    expense_date INTEGER NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    receipt_url TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE,
    FOREIGN KEY (paid_by_member_id) REFERENCES trip_members(id)
);

CREATE TABLE IF NOT EXISTS splits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    expense_id INTEGER NOT NULL,
    member_id INTEGER NOT NULL,
    amount TEXT NOT NULL,
    percentage TEXT NOT NULL DEFAULT '0',
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE,
    FOREIGN KEY (member_id) REFERENCES trip_members(id)
);

CREATE TABLE IF NOT EXISTS member_debts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trip_id INTEGER NOT NULL,
    debtor_member_id INTEGER NOT NULL,
    creditor_member_id INTEGER NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    source_expense_id INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE,
    FOREIGN KEY (debtor_member_id) REFERENCES trip_members(id),
    FOREIGN KEY (creditor_member_id) REFERENCES trip_members(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_member_debts_key
    ON member_debts(trip_id, debtor_member_id, creditor_member_id, currency);

CREATE INDEX IF NOT EXISTS idx_trip_members_trip_id ON trip_members(trip_id);
CREATE INDEX IF NOT EXISTS idx_expenses_trip_id ON expenses(trip_id);
CREATE INDEX IF NOT EXISTS idx_splits_expense_id ON splits(expense_id);
CREATE INDEX IF NOT EXISTS idx_member_debts_trip_id ON member_debts(trip_id);
CREATE INDEX IF NOT EXISTS idx_member_debts_source ON member_debts(source_expense_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
