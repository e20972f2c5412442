/*
Package sqlite provides a SQLite-backed implementation of installment.LedgerStore.

PURPOSE:
  Persists contracts, payment records and contract edit history. In
  production the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

APPEND-ONLY ENFORCEMENT:
  - payments: no DELETE (trigger); UPDATE only touches status, remaining,
    excess and confirmation columns
  - edit_events: no UPDATE, no DELETE (triggers)

KEY TABLES:
  contracts:    Terms (JSON), prepaid balance, optimistic version
  payments:     Append-only payment records, unique (contract_id, seq)
  edit_events:  Append-only edit history, keyed (contract_id, position)

ATOMIC COMMITS:
  Commit() runs in one SQL transaction. The contract row is updated first
  with "WHERE version = ?"; zero affected rows means another writer got
  there first and the whole transaction is rolled back with
  installment.ErrConcurrentModification.

TIMEOUTS:
  The database is opened with a busy timeout. SQLITE_BUSY after that timeout,
  or a context deadline, surfaces as installment.ErrStorageTimeout.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/installments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := installment.NewEngine(store)

SEE ALSO:
  - installment/store.go: Interface definition
  - installment/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/installment-engine/installment"
)

// DefaultBusyTimeout is how long SQLite waits on a locked database before
// giving up.
const DefaultBusyTimeout = 5 * time.Second

// Store implements installment.LedgerStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		dbPath, DefaultBusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		customer_id TEXT,
		terms_json TEXT NOT NULL,
		prepaid_balance TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Payments (append-only, only classification/confirmation columns change)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		status TEXT NOT NULL,
		installment_index INTEGER NOT NULL,
		expected_amount TEXT NOT NULL,
		remaining_amount TEXT,
		excess_amount TEXT,
		linked_payment_id TEXT,
		notes TEXT,
		confirmed_at TEXT,
		confirmed_by TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(contract_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_contract_seq
		ON payments(contract_id, seq);
	CREATE INDEX IF NOT EXISTS idx_payments_linked
		ON payments(linked_payment_id) WHERE linked_payment_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS payments_no_delete
		BEFORE DELETE ON payments
		BEGIN SELECT RAISE(ABORT, 'payments are append-only'); END;

	CREATE TRIGGER IF NOT EXISTS payments_core_immutable
		BEFORE UPDATE OF amount, payment_date, installment_index, seq, contract_id ON payments
		BEGIN SELECT RAISE(ABORT, 'payment core fields are immutable'); END;

	-- Edit history (append-only)
	CREATE TABLE IF NOT EXISTS edit_events (
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		position INTEGER NOT NULL,
		edited_at TEXT NOT NULL,
		edited_by TEXT NOT NULL,
		reason TEXT,
		changes_json TEXT NOT NULL,
		affected_json TEXT NOT NULL,
		impact_json TEXT NOT NULL,
		PRIMARY KEY (contract_id, position)
	);

	CREATE TRIGGER IF NOT EXISTS edit_events_no_update
		BEFORE UPDATE ON edit_events
		BEGIN SELECT RAISE(ABORT, 'edit history is append-only'); END;

	CREATE TRIGGER IF NOT EXISTS edit_events_no_delete
		BEFORE DELETE ON edit_events
		BEGIN SELECT RAISE(ABORT, 'edit history is append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// CONTRACTS
// =============================================================================

// CreateContract inserts a new contract.
func (s *Store) CreateContract(ctx context.Context, c installment.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	termsJSON, err := json.Marshal(c.Terms)
	if err != nil {
		return fmt.Errorf("failed to encode terms: %w", err)
	}
	if c.Version == 0 {
		c.Version = 1
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, customer_id, terms_json, prepaid_balance, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.CustomerID, string(termsJSON), c.PrepaidBalance.String(), c.Version,
		c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", installment.ErrDuplicateContract, c.ID)
		}
		return translate(err, "failed to create contract")
	}
	return nil
}

// LoadContract returns the contract and its full edit history.
func (s *Store) LoadContract(ctx context.Context, id installment.ContractID) (installment.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, terms_json, prepaid_balance, version, created_at, updated_at
		FROM contracts WHERE id = ?
	`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return installment.Contract{}, fmt.Errorf("%w: %s", installment.ErrContractNotFound, id)
	}
	if err != nil {
		return installment.Contract{}, translate(err, "failed to load contract")
	}

	c.EditHistory, err = s.loadHistory(ctx, id)
	if err != nil {
		return installment.Contract{}, err
	}
	return c, nil
}

// ListContracts returns all contracts without history.
func (s *Store) ListContracts(ctx context.Context) ([]installment.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, terms_json, prepaid_balance, version, created_at, updated_at
		FROM contracts ORDER BY id
	`)
	if err != nil {
		return nil, translate(err, "failed to list contracts")
	}
	defer rows.Close()

	var contracts []installment.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, translate(err, "failed to scan contract")
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (installment.Contract, error) {
	var (
		c                    installment.Contract
		customerID           sql.NullString
		termsJSON, prepaid   string
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &customerID, &termsJSON, &prepaid, &c.Version, &createdAt, &updatedAt); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(termsJSON), &c.Terms); err != nil {
		return c, fmt.Errorf("failed to decode terms of %s: %w", c.ID, err)
	}
	c.CustomerID = customerID.String

	d := decoder{row: "contract " + string(c.ID)}
	c.PrepaidBalance = d.money("prepaid_balance", prepaid)
	c.CreatedAt = d.timestamp("created_at", createdAt)
	c.UpdatedAt = d.timestamp("updated_at", updatedAt)
	return c, d.err
}

func (s *Store) loadHistory(ctx context.Context, id installment.ContractID) ([]installment.ContractEditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, edited_at, edited_by, reason, changes_json, affected_json, impact_json
		FROM edit_events WHERE contract_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, translate(err, "failed to load edit history")
	}
	defer rows.Close()

	var history []installment.ContractEditEvent
	for rows.Next() {
		var (
			ev                            installment.ContractEditEvent
			editedAt                      string
			reason                        sql.NullString
			changesJSON, affected, impact string
		)
		if err := rows.Scan(&ev.Position, &editedAt, &ev.EditedBy, &reason, &changesJSON, &affected, &impact); err != nil {
			return nil, fmt.Errorf("failed to scan edit event: %w", err)
		}
		d := decoder{row: fmt.Sprintf("edit event %s/%d", id, ev.Position)}
		if ev.Date = d.timestamp("edited_at", editedAt); d.err != nil {
			return nil, d.err
		}
		ev.Reason = reason.String
		if err := json.Unmarshal([]byte(changesJSON), &ev.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode changes: %w", err)
		}
		if err := json.Unmarshal([]byte(affected), &ev.AffectedPayments); err != nil {
			return nil, fmt.Errorf("failed to decode affected payments: %w", err)
		}
		if err := json.Unmarshal([]byte(impact), &ev.ImpactSummary); err != nil {
			return nil, fmt.Errorf("failed to decode impact summary: %w", err)
		}
		history = append(history, ev)
	}
	return history, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

// LoadPayments returns all payments of a contract in recording order.
func (s *Store) LoadPayments(ctx context.Context, id installment.ContractID) ([]installment.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, seq, amount, payment_date, payment_type, status, installment_index,
		       expected_amount, remaining_amount, excess_amount, linked_payment_id, notes,
		       confirmed_at, confirmed_by, created_at
		FROM payments WHERE contract_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, translate(err, "failed to query payments")
	}
	defer rows.Close()

	var payments []installment.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(rows *sql.Rows) (installment.PaymentRecord, error) {
	var (
		p                         installment.PaymentRecord
		amount, expected          string
		paymentDate, createdAt    string
		remaining, excess, linked sql.NullString
		notes, confirmedBy        sql.NullString
		confirmedAt               sql.NullString
	)
	err := rows.Scan(
		&p.ID, &p.ContractID, &p.Seq, &amount, &paymentDate, &p.PaymentType, &p.Status,
		&p.InstallmentIndex, &expected, &remaining, &excess, &linked, &notes,
		&confirmedAt, &confirmedBy, &createdAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	d := decoder{row: "payment " + string(p.ID)}
	p.Amount = d.money("amount", amount)
	p.ExpectedAmount = d.money("expected_amount", expected)
	p.RemainingAmount = d.optionalMoney("remaining_amount", remaining)
	p.ExcessAmount = d.optionalMoney("excess_amount", excess)
	p.LinkedPaymentID = installment.PaymentID(linked.String)
	p.Notes = notes.String
	p.ConfirmedBy = confirmedBy.String
	p.Date = d.date("payment_date", paymentDate)
	if confirmedAt.Valid {
		t := d.timestamp("confirmed_at", confirmedAt.String)
		p.ConfirmedAt = &t
	}
	p.CreatedAt = d.timestamp("created_at", createdAt)
	return p, d.err
}

func insertPayment(ctx context.Context, db execer, p installment.PaymentRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments
		(id, contract_id, seq, amount, payment_date, payment_type, status, installment_index,
		 expected_amount, remaining_amount, excess_amount, linked_payment_id, notes,
		 confirmed_at, confirmed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ContractID, p.Seq, p.Amount.String(), p.Date.String(), p.PaymentType, p.Status,
		p.InstallmentIndex, p.ExpectedAmount.String(),
		nullDecimal(p.RemainingAmount), nullDecimal(p.ExcessAmount),
		nullString(string(p.LinkedPaymentID)), nullString(p.Notes),
		nullTime(p.ConfirmedAt), nullString(p.ConfirmedBy),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return translate(err, "failed to insert payment")
	}
	return nil
}

func updatePayment(ctx context.Context, db execer, p installment.PaymentRecord) error {
	res, err := db.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, remaining_amount = ?, excess_amount = ?, confirmed_at = ?, confirmed_by = ?
		WHERE id = ? AND contract_id = ?
	`,
		p.Status, nullDecimal(p.RemainingAmount), nullDecimal(p.ExcessAmount),
		nullTime(p.ConfirmedAt), nullString(p.ConfirmedBy),
		p.ID, p.ContractID,
	)
	if err != nil {
		return translate(err, "failed to update payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", installment.ErrPaymentNotFound, p.ID)
	}
	return nil
}

// =============================================================================
// COMMIT (atomic multi-record write)
// =============================================================================

// Commit writes c in a single transaction.
func (s *Store) Commit(ctx context.Context, c installment.Commit) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)

		query := `UPDATE contracts SET prepaid_balance = ?, version = version + 1, updated_at = ?`
		args := []any{c.PrepaidBalance.String(), now}
		if c.Terms != nil {
			termsJSON, err := json.Marshal(c.Terms)
			if err != nil {
				return fmt.Errorf("failed to encode terms: %w", err)
			}
			query += `, terms_json = ?`
			args = append(args, string(termsJSON))
		}
		query += ` WHERE id = ? AND version = ?`
		args = append(args, c.ContractID, c.ExpectedVersion)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return translate(err, "failed to update contract")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts WHERE id = ?", c.ContractID).Scan(&exists); err != nil {
				return translate(err, "failed to check contract")
			}
			if exists == 0 {
				return fmt.Errorf("%w: %s", installment.ErrContractNotFound, c.ContractID)
			}
			return fmt.Errorf("%w: contract %s moved past version %d",
				installment.ErrConcurrentModification, c.ContractID, c.ExpectedVersion)
		}

		for _, p := range c.UpdatedPayments {
			p.ContractID = c.ContractID
			if err := updatePayment(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, p := range c.NewPayments {
			p.ContractID = c.ContractID
			if err := insertPayment(ctx, tx, p); err != nil {
				return err
			}
		}
		if c.Event != nil {
			if err := insertEvent(ctx, tx, c.ContractID, *c.Event); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEvent(ctx context.Context, db execer, id installment.ContractID, ev installment.ContractEditEvent) error {
	changesJSON, err := json.Marshal(ev.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}
	affected := ev.AffectedPayments
	if affected == nil {
		affected = []installment.PaymentID{}
	}
	affectedJSON, _ := json.Marshal(affected)
	impactJSON, err := json.Marshal(ev.ImpactSummary)
	if err != nil {
		return fmt.Errorf("failed to encode impact summary: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO edit_events
		(contract_id, position, edited_at, edited_by, reason, changes_json, affected_json, impact_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, ev.Position, ev.Date.UTC().Format(time.RFC3339Nano), ev.EditedBy, nullString(ev.Reason),
		string(changesJSON), string(affectedJSON), string(impactJSON),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Another writer appended at this position first.
			return fmt.Errorf("%w: edit event position %d taken", installment.ErrConcurrentModification, ev.Position)
		}
		return translate(err, "failed to append edit event")
	}
	return nil
}

// withTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(err, "failed to commit transaction")
	}
	return nil
}

// Reset drops and recreates all tables. For demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS edit_events;
		DROP TABLE IF EXISTS payments;
		DROP TABLE IF EXISTS contracts;
	`); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return s.migrate()
}

// =============================================================================
// HELPERS
// =============================================================================

// translate maps driver failures onto the engine's error taxonomy.
func translate(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || isBusyError(err) {
		return fmt.Errorf("%w: %s: %v", installment.ErrStorageTimeout, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d decimal.Decimal) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// decoder parses stored column text and keeps the first failure. A row that
// does not decode is reported, never replayed with zero values.
type decoder struct {
	row string
	err error
}

func (d *decoder) fail(column, value string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: failed to decode %s of %s from %q: %v",
			installment.ErrScheduleCorrupt, column, d.row, value, err)
	}
}

func (d *decoder) money(column, value string) decimal.Decimal {
	m, err := decimal.NewFromString(value)
	if err != nil {
		d.fail(column, value, err)
		return decimal.Zero
	}
	return m
}

func (d *decoder) optionalMoney(column string, value sql.NullString) decimal.Decimal {
	if !value.Valid {
		return decimal.Zero
	}
	return d.money(column, value.String)
}

func (d *decoder) timestamp(column, value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		d.fail(column, value, err)
	}
	return t
}

func (d *decoder) date(column, value string) installment.TimePoint {
	tp, err := installment.ParseDate(value)
	if err != nil {
		d.fail(column, value, err)
	}
	return tp
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
