/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists client accounts, the append-only transaction log and the VIN
  registry. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The transactions table sees INSERTs only. No UPDATE, no DELETE - the one
  exception is the ON DELETE CASCADE fired by account removal. Refunds are
  new rows; the at-most-one-refund-per-purchase rule is enforced twice,
  in the refund engine and by a unique partial index on refund_for.

KEY TABLES:
  clients:      Account rows with the cached totals (decimal TEXT columns)
  transactions: Immutable ledger (FK to clients, cascade on delete)
  client_vins:  Vehicle identifiers, unique per (client, vin)

ATOMIC UNIT:
  WithTx wraps BEGIN..COMMIT and holds the store write mutex for the whole
  unit. That gives the engines their insert+update atomicity and
  serializes concurrent updates of the same client row, so two concurrent
  purchases cannot lose an increment.

WAL MODE:
  Opened with WAL and foreign_keys=on. Readers don't block the writer;
  a single writer at a time matches the mutex discipline above.

DECIMAL STORAGE:
  Monetary columns are decimal strings, parsed with shopspring/decimal on
  read. Storing REAL would reintroduce the float drift the money package
  exists to prevent.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/purchase.go, ledger/refund.go: The WithTx callers
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-ledger/ledger"
	"github.com/warp/loyalty-ledger/money"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: keeps ":memory:" databases coherent across the pool
	// and matches the single-writer mutex discipline.
	db.SetMaxOpenConns(1)

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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		role TEXT NOT NULL DEFAULT 'client',
		bonus_balance TEXT NOT NULL DEFAULT '0',
		total_purchases_sum TEXT NOT NULL DEFAULT '0',
		total_orders_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_phone
		ON clients(phone) WHERE phone IS NOT NULL;

	-- Append-only ledger. Cascade is the only deletion path.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		purchase_amount TEXT NOT NULL,
		bonus_used TEXT NOT NULL,
		bonus_earned TEXT NOT NULL,
		final_paid TEXT NOT NULL,
		created_at TEXT NOT NULL,
		is_refund BOOLEAN NOT NULL DEFAULT FALSE,
		refund_for TEXT REFERENCES transactions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_client_created
		ON transactions(client_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at);

	-- CRITICAL: at most one refund may reference a purchase
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_refund_for
		ON transactions(refund_for) WHERE refund_for IS NOT NULL;

	CREATE TABLE IF NOT EXISTS client_vins (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		vin TEXT NOT NULL,
		machine_label TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(client_id, vin)
	);

	CREATE INDEX IF NOT EXISTS idx_client_vins_client
		ON client_vins(client_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// timeFormat is RFC3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which would break lexicographic range comparisons on
// the TEXT created_at columns.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// dbtx is the common surface of *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONAL UNIT (ledger.Store WithTx)
// =============================================================================

// WithTx executes fn inside a database transaction, holding the write
// mutex for the duration so units touching the same client serialize.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transactional view handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

// WithTx on an already-open unit joins it rather than nesting.
func (ts *txStore) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	return fn(ts)
}

func (ts *txStore) CreateClient(ctx context.Context, c *ledger.Client) error {
	return createClient(ctx, ts.tx, c)
}
func (ts *txStore) GetClient(ctx context.Context, id string) (*ledger.Client, error) {
	return getClient(ctx, ts.tx, id)
}
func (ts *txStore) ListClients(ctx context.Context) ([]ledger.Client, error) {
	return listClients(ctx, ts.tx)
}
func (ts *txStore) UpdateClient(ctx context.Context, id string, upd ledger.ClientUpdate) (*ledger.Client, error) {
	return updateClient(ctx, ts.tx, id, upd)
}
func (ts *txStore) SaveClientTotals(ctx context.Context, id string, bonusBalance, totalPurchases decimal.Decimal, ordersCount int) error {
	return saveClientTotals(ctx, ts.tx, id, bonusBalance, totalPurchases, ordersCount)
}
func (ts *txStore) DeleteClient(ctx context.Context, id string) error {
	return deleteClient(ctx, ts.tx, id)
}
func (ts *txStore) AppendTransaction(ctx context.Context, t *ledger.Transaction) error {
	return appendTransaction(ctx, ts.tx, t)
}
func (ts *txStore) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}
func (ts *txStore) RefundOf(ctx context.Context, purchaseID string) (*ledger.Transaction, error) {
	return refundOf(ctx, ts.tx, purchaseID)
}
func (ts *txStore) TransactionsForClient(ctx context.Context, clientID string) ([]ledger.Transaction, error) {
	return transactionsForClient(ctx, ts.tx, clientID)
}
func (ts *txStore) PurchasesForClient(ctx context.Context, clientID string) ([]ledger.PurchaseSummary, error) {
	return purchasesForClient(ctx, ts.tx, clientID)
}
func (ts *txStore) BonusEntriesThrough(ctx context.Context, clientIDs []string, cutoff time.Time) (map[string][]ledger.BonusEntry, error) {
	return bonusEntriesThrough(ctx, ts.tx, clientIDs, cutoff)
}
func (ts *txStore) NonRefundTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	return nonRefundTransactions(ctx, ts.tx)
}
func (ts *txStore) NonRefundTransactionsInRange(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	return nonRefundTransactionsInRange(ctx, ts.tx, from, to)
}
func (ts *txStore) RefundedIDs(ctx context.Context, purchaseIDs []string) (map[string]bool, error) {
	return refundedIDs(ctx, ts.tx, purchaseIDs)
}
func (ts *txStore) AddVIN(ctx context.Context, v *ledger.VIN) error {
	return addVIN(ctx, ts.tx, v)
}
func (ts *txStore) VINsForClient(ctx context.Context, clientID string) ([]ledger.VIN, error) {
	return vinsForClient(ctx, ts.tx, clientID)
}
func (ts *txStore) VINsForClients(ctx context.Context, clientIDs []string) (map[string][]ledger.VIN, error) {
	return vinsForClients(ctx, ts.tx, clientIDs)
}
func (ts *txStore) UpdateVINLabel(ctx context.Context, id, machineLabel string) (*ledger.VIN, error) {
	return updateVINLabel(ctx, ts.tx, id, machineLabel)
}
func (ts *txStore) DeleteVIN(ctx context.Context, id string) error {
	return deleteVIN(ctx, ts.tx, id)
}

// =============================================================================
// CLIENT STORE (ledger.ClientStore interface)
// =============================================================================

func (s *Store) CreateClient(ctx context.Context, c *ledger.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createClient(ctx, s.db, c)
}

func (s *Store) GetClient(ctx context.Context, id string) (*ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClient(ctx, s.db, id)
}

func (s *Store) ListClients(ctx context.Context) ([]ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listClients(ctx, s.db)
}

func (s *Store) UpdateClient(ctx context.Context, id string, upd ledger.ClientUpdate) (*ledger.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateClient(ctx, s.db, id, upd)
}

func (s *Store) SaveClientTotals(ctx context.Context, id string, bonusBalance, totalPurchases decimal.Decimal, ordersCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveClientTotals(ctx, s.db, id, bonusBalance, totalPurchases, ordersCount)
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteClient(ctx, s.db, id)
}

func createClient(ctx context.Context, db dbtx, c *ledger.Client) error {
	query := `
		INSERT INTO clients
		(id, name, phone, role, bonus_balance, total_purchases_sum, total_orders_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		c.ID, c.Name, nullString(c.Phone), string(c.Role),
		c.BonusBalance.String(), c.TotalPurchasesSum.String(), c.TotalOrdersCount,
		c.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err, "clients.phone") {
			return ledger.ErrDuplicatePhone
		}
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

const clientColumns = `id, name, phone, role, bonus_balance, total_purchases_sum, total_orders_count, created_at`

func getClient(ctx context.Context, db dbtx, id string) (*ledger.Client, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE id = ?", id)

	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func listClients(ctx context.Context, db dbtx) ([]ledger.Client, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM clients ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []ledger.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func updateClient(ctx context.Context, db dbtx, id string, upd ledger.ClientUpdate) (*ledger.Client, error) {
	var sets []string
	var args []any

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, nullString(*upd.Phone))
	}
	if upd.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*upd.Role))
	}

	if len(sets) > 0 {
		args = append(args, id)
		res, err := db.ExecContext(ctx,
			"UPDATE clients SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			if isUniqueConstraintError(err, "clients.phone") {
				return nil, ledger.ErrDuplicatePhone
			}
			return nil, fmt.Errorf("failed to update client: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ledger.ErrClientNotFound
		}
	}

	return getClient(ctx, db, id)
}

func saveClientTotals(ctx context.Context, db dbtx, id string, bonusBalance, totalPurchases decimal.Decimal, ordersCount int) error {
	res, err := db.ExecContext(ctx,
		"UPDATE clients SET bonus_balance = ?, total_purchases_sum = ?, total_orders_count = ? WHERE id = ?",
		bonusBalance.String(), totalPurchases.String(), ordersCount, id)
	if err != nil {
		return fmt.Errorf("failed to save client totals: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrClientNotFound
	}
	return nil
}

func deleteClient(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrClientNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*ledger.Client, error) {
	var (
		c         ledger.Client
		phone     sql.NullString
		role      string
		balance   string
		purchases string
		createdAt string
	)

	err := row.Scan(&c.ID, &c.Name, &phone, &role, &balance, &purchases, &c.TotalOrdersCount, &createdAt)
	if err != nil {
		return nil, err
	}

	c.Phone = phone.String
	c.Role = ledger.Role(role)
	c.BonusBalance = money.MustParse(balance)
	c.TotalPurchasesSum = money.MustParse(purchases)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

// =============================================================================
// TRANSACTION STORE (ledger.TransactionStore interface)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, t *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, t)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func (s *Store) RefundOf(ctx context.Context, purchaseID string) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return refundOf(ctx, s.db, purchaseID)
}

func (s *Store) TransactionsForClient(ctx context.Context, clientID string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsForClient(ctx, s.db, clientID)
}

func (s *Store) PurchasesForClient(ctx context.Context, clientID string) ([]ledger.PurchaseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return purchasesForClient(ctx, s.db, clientID)
}

func (s *Store) BonusEntriesThrough(ctx context.Context, clientIDs []string, cutoff time.Time) (map[string][]ledger.BonusEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bonusEntriesThrough(ctx, s.db, clientIDs, cutoff)
}

func (s *Store) NonRefundTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nonRefundTransactions(ctx, s.db)
}

func (s *Store) NonRefundTransactionsInRange(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nonRefundTransactionsInRange(ctx, s.db, from, to)
}

func (s *Store) RefundedIDs(ctx context.Context, purchaseIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return refundedIDs(ctx, s.db, purchaseIDs)
}

const txColumns = `id, client_id, purchase_amount, bonus_used, bonus_earned, final_paid, created_at, is_refund, refund_for`

func appendTransaction(ctx context.Context, db dbtx, t *ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, client_id, purchase_amount, bonus_used, bonus_earned, final_paid, created_at, is_refund, refund_for)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		t.ID, t.ClientID,
		t.PurchaseAmount.String(), t.BonusUsed.String(), t.BonusEarned.String(), t.FinalPaid.String(),
		t.CreatedAt.UTC().Format(timeFormat),
		t.IsRefund, nullString(t.RefundFor),
	)
	if err != nil {
		if isUniqueConstraintError(err, "transactions.refund_for") {
			return ledger.ErrAlreadyRefunded
		}
		if isForeignKeyError(err) {
			return ledger.ErrClientNotFound
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func getTransaction(ctx context.Context, db dbtx, id string) (*ledger.Transaction, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func refundOf(ctx context.Context, db dbtx, purchaseID string) (*ledger.Transaction, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE refund_for = ? LIMIT 1", purchaseID)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func transactionsForClient(ctx context.Context, db dbtx, clientID string) ([]ledger.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM transactions
		WHERE client_id = ?
		ORDER BY created_at ASC, id ASC
	`
	return queryTransactions(ctx, db, query, clientID)
}

func purchasesForClient(ctx context.Context, db dbtx, clientID string) ([]ledger.PurchaseSummary, error) {
	query := `
		SELECT id, created_at, purchase_amount FROM transactions
		WHERE client_id = ? AND is_refund = FALSE
		ORDER BY created_at DESC
	`

	rows, err := db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []ledger.PurchaseSummary
	for rows.Next() {
		var (
			p         ledger.PurchaseSummary
			createdAt string
			amount    string
		)
		if err := rows.Scan(&p.ID, &createdAt, &amount); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.PurchaseAmount = money.MustParse(amount)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func bonusEntriesThrough(ctx context.Context, db dbtx, clientIDs []string, cutoff time.Time) (map[string][]ledger.BonusEntry, error) {
	result := make(map[string][]ledger.BonusEntry)
	if len(clientIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT client_id, bonus_earned, bonus_used, created_at FROM transactions
		WHERE client_id IN (` + placeholders(len(clientIDs)) + `)
		  AND created_at <= ?
	`

	args := make([]any, 0, len(clientIDs)+1)
	for _, id := range clientIDs {
		args = append(args, id)
	}
	args = append(args, cutoff.UTC().Format(timeFormat))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			clientID  string
			earned    string
			used      string
			createdAt string
			e         ledger.BonusEntry
		)
		if err := rows.Scan(&clientID, &earned, &used, &createdAt); err != nil {
			return nil, err
		}
		e.Earned = money.MustParse(earned)
		e.Used = money.MustParse(used)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		result[clientID] = append(result[clientID], e)
	}
	return result, rows.Err()
}

func nonRefundTransactions(ctx context.Context, db dbtx) ([]ledger.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM transactions
		WHERE is_refund = FALSE
		ORDER BY created_at DESC
	`
	return queryTransactions(ctx, db, query)
}

func nonRefundTransactionsInRange(ctx context.Context, db dbtx, from, to time.Time) ([]ledger.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM transactions
		WHERE is_refund = FALSE
		  AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`
	return queryTransactions(ctx, db, query,
		from.UTC().Format(timeFormat), to.UTC().Format(timeFormat))
}

func refundedIDs(ctx context.Context, db dbtx, purchaseIDs []string) (map[string]bool, error) {
	refunded := make(map[string]bool)
	if len(purchaseIDs) == 0 {
		return refunded, nil
	}

	query := `
		SELECT refund_for FROM transactions
		WHERE refund_for IN (` + placeholders(len(purchaseIDs)) + `)
	`

	args := make([]any, len(purchaseIDs))
	for i, id := range purchaseIDs {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		refunded[id] = true
	}
	return refunded, rows.Err()
}

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var (
		t         ledger.Transaction
		amount    string
		used      string
		earned    string
		paid      string
		createdAt string
		refundFor sql.NullString
	)

	err := row.Scan(&t.ID, &t.ClientID, &amount, &used, &earned, &paid, &createdAt, &t.IsRefund, &refundFor)
	if err != nil {
		return nil, err
	}

	t.PurchaseAmount = money.MustParse(amount)
	t.BonusUsed = money.MustParse(used)
	t.BonusEarned = money.MustParse(earned)
	t.FinalPaid = money.MustParse(paid)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.RefundFor = refundFor.String
	return &t, nil
}

// =============================================================================
// VIN STORE (ledger.VINStore interface)
// =============================================================================

func (s *Store) AddVIN(ctx context.Context, v *ledger.VIN) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addVIN(ctx, s.db, v)
}

func (s *Store) VINsForClient(ctx context.Context, clientID string) ([]ledger.VIN, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vinsForClient(ctx, s.db, clientID)
}

func (s *Store) VINsForClients(ctx context.Context, clientIDs []string) (map[string][]ledger.VIN, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vinsForClients(ctx, s.db, clientIDs)
}

func (s *Store) UpdateVINLabel(ctx context.Context, id, machineLabel string) (*ledger.VIN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateVINLabel(ctx, s.db, id, machineLabel)
}

func (s *Store) DeleteVIN(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteVIN(ctx, s.db, id)
}

func addVIN(ctx context.Context, db dbtx, v *ledger.VIN) error {
	query := `
		INSERT INTO client_vins (id, client_id, vin, machine_label, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		v.ID, v.ClientID, v.VIN, nullString(v.MachineLabel),
		v.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err, "client_vins.client_id, client_vins.vin") {
			return ledger.ErrDuplicateVIN
		}
		if isForeignKeyError(err) {
			return ledger.ErrClientNotFound
		}
		return fmt.Errorf("failed to insert vin: %w", err)
	}
	return nil
}

func vinsForClient(ctx context.Context, db dbtx, clientID string) ([]ledger.VIN, error) {
	query := `
		SELECT id, client_id, vin, machine_label, created_at FROM client_vins
		WHERE client_id = ?
		ORDER BY created_at ASC
	`

	rows, err := db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vins []ledger.VIN
	for rows.Next() {
		v, err := scanVIN(rows)
		if err != nil {
			return nil, err
		}
		vins = append(vins, *v)
	}
	return vins, rows.Err()
}

func vinsForClients(ctx context.Context, db dbtx, clientIDs []string) (map[string][]ledger.VIN, error) {
	result := make(map[string][]ledger.VIN)
	if len(clientIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT id, client_id, vin, machine_label, created_at FROM client_vins
		WHERE client_id IN (` + placeholders(len(clientIDs)) + `)
		ORDER BY created_at ASC
	`

	args := make([]any, len(clientIDs))
	for i, id := range clientIDs {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVIN(rows)
		if err != nil {
			return nil, err
		}
		result[v.ClientID] = append(result[v.ClientID], *v)
	}
	return result, rows.Err()
}

func updateVINLabel(ctx context.Context, db dbtx, id, machineLabel string) (*ledger.VIN, error) {
	res, err := db.ExecContext(ctx,
		"UPDATE client_vins SET machine_label = ? WHERE id = ?",
		nullString(machineLabel), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update vin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ledger.ErrVINNotFound
	}

	row := db.QueryRowContext(ctx,
		"SELECT id, client_id, vin, machine_label, created_at FROM client_vins WHERE id = ?", id)
	return scanVIN(row)
}

func deleteVIN(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM client_vins WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete vin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrVINNotFound
	}
	return nil
}

func scanVIN(row rowScanner) (*ledger.VIN, error) {
	var (
		v         ledger.VIN
		label     sql.NullString
		createdAt string
	)

	err := row.Scan(&v.ID, &v.ClientID, &v.VIN, &label, &createdAt)
	if err != nil {
		return nil, err
	}

	v.MachineLabel = label.String
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &v, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"transactions", "client_vins", "clients"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueConstraintError(err error, indexHint string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, indexHint)
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
