package sqlite

const schema = `
-- Transactions table
-- Historical transaction rows consulted by duplicate detection. Rows are
-- written by the import pipeline and never updated here.
CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    reference_number TEXT NOT NULL CHECK(length(reference_number) <= 64),
    transaction_date DATE NOT NULL,
    amount REAL NOT NULL CHECK(amount >= 0),
    file_url TEXT NOT NULL DEFAULT '',
    file_id TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Composite index covering the exact-match lookup path
CREATE INDEX IF NOT EXISTS idx_transactions_match ON transactions(reference_number, transaction_date, amount);
CREATE INDEX IF NOT EXISTS idx_transactions_file ON transactions(file_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);

-- Decision log table (append-only audit trail)
-- One row per resolved duplicate instance. user_id is NULL for decisions
-- applied by the system itself (decision timeout). Retention cleanup is the
-- only permitted mutation.
CREATE TABLE IF NOT EXISTS decision_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    reference_number TEXT NOT NULL,
    transaction_date DATE NOT NULL,
    transaction_amount REAL NOT NULL CHECK(transaction_amount >= 0),
    decision TEXT NOT NULL CHECK(decision IN ('continue', 'cancel')),
    existing_transaction_id INTEGER,
    new_file_url TEXT NOT NULL DEFAULT '',
    user_id TEXT,
    session_id TEXT NOT NULL DEFAULT '',
    operation_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decision_log_reference ON decision_log(reference_number);
CREATE INDEX IF NOT EXISTS idx_decision_log_date ON decision_log(transaction_date);
CREATE INDEX IF NOT EXISTS idx_decision_log_decision ON decision_log(decision);
CREATE INDEX IF NOT EXISTS idx_decision_log_timestamp ON decision_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_decision_log_user ON decision_log(user_id);
`
