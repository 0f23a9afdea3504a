/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists the full engine state in one table per collection. The engine
  saves after every committed command and loads once at startup.

FULL-STATE SUBSTITUTION:
  Save() deletes every row and re-inserts the given state inside a single
  SQL transaction. A failed Save leaves the previous rows untouched, which
  is what lets the engine roll its memory back to the same view.

KEY TABLES:
  partners:          Reference registry (roles stored comma separated)
  materials:         Reference registry
  batches:           Batch ledger (shipping stored as JSON)
  transactions:      Append-only weight log
  financial_entries: Payables and receivables
  orders:            Order book (items stored as JSON)

  Row order is insertion order (rowid), so the slices round-trip in order.

ENCODING:
  Decimals are TEXT (exact), times are RFC 3339 TEXT in UTC.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/recycling.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine, err := ledger.Open(ctx, store)

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/green/recycling-ledger/ledger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += "?_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
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
	CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		roles TEXT NOT NULL,
		document TEXT,
		email TEXT,
		phone TEXT,
		address TEXT,
		contact_person TEXT
	);

	CREATE TABLE IF NOT EXISTS materials (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		ncm TEXT
	);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		partner_id TEXT NOT NULL,
		partner_code TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		split_path TEXT,
		splits INTEGER NOT NULL DEFAULT 0,
		material_code TEXT NOT NULL,
		service_provider_id TEXT,
		customer_id TEXT,
		weight_kg TEXT NOT NULL,
		status TEXT NOT NULL,
		purchase_price_per_kg TEXT,
		sale_price_per_kg TEXT,
		shipping_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
	CREATE INDEX IF NOT EXISTS idx_batches_partner ON batches(partner_id, sequence);

	-- Append-only weight log. Rows survive the deletion of their batch.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		batch_code TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		weight_kg TEXT NOT NULL,
		original_weight_kg TEXT,
		date TEXT NOT NULL,
		description TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_batch ON transactions(batch_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);

	CREATE TABLE IF NOT EXISTS financial_entries (
		id TEXT PRIMARY KEY,
		entry_type TEXT NOT NULL,
		operation_type TEXT NOT NULL,
		partner_id TEXT NOT NULL,
		batch_id TEXT,
		batch_code TEXT,
		order_number TEXT,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		payment_date TEXT,
		status TEXT NOT NULL,
		description TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_status ON financial_entries(entry_type, status);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		seller_id TEXT,
		commission_amount TEXT NOT NULL,
		is_fob BOOLEAN NOT NULL DEFAULT FALSE,
		items_json TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// tables lists every table in delete order.
var tables = []string{"orders", "financial_entries", "transactions", "batches", "materials", "partners"}

// =============================================================================
// SAVE - Full rewrite inside one SQL transaction
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save replaces every stored row with st.
func (s *Store) Save(ctx context.Context, st *ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, write := range []func(context.Context, execer, *ledger.State) error{
		insertPartners, insertMaterials, insertBatches, insertTransactions, insertEntries, insertOrders,
	} {
		if err := write(ctx, sqlTx, st); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func insertPartners(ctx context.Context, db execer, st *ledger.State) error {
	for _, p := range st.Partners {
		_, err := db.ExecContext(ctx, `
			INSERT INTO partners (id, code, name, roles, document, email, phone, address, contact_person)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Code, p.Name, p.Roles.String(),
			nullString(p.Document), nullString(p.Email), nullString(p.Phone),
			nullString(p.Address), nullString(p.ContactPerson),
		)
		if err != nil {
			return fmt.Errorf("failed to save partner %s: %w", p.Code, err)
		}
	}
	return nil
}

func insertMaterials(ctx context.Context, db execer, st *ledger.State) error {
	for _, m := range st.Materials {
		_, err := db.ExecContext(ctx,
			`INSERT INTO materials (id, code, name, ncm) VALUES (?, ?, ?, ?)`,
			m.ID, m.Code, m.Name, nullString(m.NCM),
		)
		if err != nil {
			return fmt.Errorf("failed to save material %s: %w", m.Code, err)
		}
	}
	return nil
}

func insertBatches(ctx context.Context, db execer, st *ledger.State) error {
	for _, b := range st.Batches {
		var shipping sql.NullString
		if b.Shipping != nil {
			raw, err := json.Marshal(b.Shipping)
			if err != nil {
				return fmt.Errorf("failed to encode shipping of batch %s: %w", b.Code(), err)
			}
			shipping = sql.NullString{String: string(raw), Valid: true}
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO batches
			(id, parent_id, partner_id, partner_code, sequence, split_path, splits, material_code,
			 service_provider_id, customer_id, weight_kg, status, purchase_price_per_kg,
			 sale_price_per_kg, shipping_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, nullString(b.ParentID), b.PartnerID, b.PartnerCode, b.Sequence,
			nullString(strings.Join(b.SplitPath, "/")), b.Splits, b.MaterialCode,
			nullString(b.ServiceProviderID), nullString(b.CustomerID),
			b.WeightKg.String(), string(b.Status),
			nullDecimal(b.PurchasePricePerKg), nullDecimal(b.SalePricePerKg),
			shipping, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save batch %s: %w", b.Code(), err)
		}
	}
	return nil
}

func insertTransactions(ctx context.Context, db execer, st *ledger.State) error {
	for _, tx := range st.Transactions {
		_, err := db.ExecContext(ctx, `
			INSERT INTO transactions
			(id, batch_id, batch_code, tx_type, weight_kg, original_weight_kg, date, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID, tx.BatchID, tx.BatchCode, string(tx.Type), tx.WeightKg.String(),
			nullDecimal(tx.OriginalWeightKg), formatTime(tx.Date), tx.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}

func insertEntries(ctx context.Context, db execer, st *ledger.State) error {
	for _, f := range st.FinancialEntries {
		var paid sql.NullString
		if f.PaymentDate != nil {
			paid = sql.NullString{String: formatTime(*f.PaymentDate), Valid: true}
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO financial_entries
			(id, entry_type, operation_type, partner_id, batch_id, batch_code, order_number,
			 amount, date, due_date, payment_date, status, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, string(f.Type), f.OperationType, f.PartnerID,
			nullString(f.BatchID), nullString(f.BatchCode), nullString(f.OrderNumber),
			f.Amount.String(), formatTime(f.Date), formatTime(f.DueDate), paid,
			string(f.Status), f.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to save financial entry %s: %w", f.ID, err)
		}
	}
	return nil
}

func insertOrders(ctx context.Context, db execer, st *ledger.State) error {
	for _, o := range st.Orders {
		items, err := json.Marshal(o.Items)
		if err != nil {
			return fmt.Errorf("failed to encode items of order %s: %w", o.OrderNumber, err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO orders
			(id, order_number, date, customer_id, seller_id, commission_amount, is_fob,
			 items_json, total_amount, status, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.OrderNumber, formatTime(o.Date), o.CustomerID, nullString(o.SellerID),
			o.CommissionAmount.String(), o.IsFOB, string(items), o.TotalAmount.String(),
			string(o.Status), nullString(o.Notes),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("order %s: %w", o.OrderNumber, ledger.ErrDuplicateCode)
			}
			return fmt.Errorf("failed to save order %s: %w", o.OrderNumber, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the complete state. An empty database yields an empty state.
func (s *Store) Load(ctx context.Context) (*ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := ledger.NewState()
	for _, read := range []func(context.Context, *ledger.State) error{
		s.loadPartners, s.loadMaterials, s.loadBatches, s.loadTransactions, s.loadEntries, s.loadOrders,
	} {
		if err := read(ctx, st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *Store) loadPartners(ctx context.Context, st *ledger.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, roles, document, email, phone, address, contact_person
		FROM partners ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to query partners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                                        ledger.Partner
			roles                                    string
			document, email, phone, address, contact sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &roles, &document, &email, &phone, &address, &contact); err != nil {
			return fmt.Errorf("failed to scan partner: %w", err)
		}
		if p.Roles, err = ledger.ParseRoleSet(roles); err != nil {
			return fmt.Errorf("partner %s: %w", p.Code, err)
		}
		p.Document, p.Email, p.Phone = document.String, email.String, phone.String
		p.Address, p.ContactPerson = address.String, contact.String
		st.Partners = append(st.Partners, p)
	}
	return rows.Err()
}

func (s *Store) loadMaterials(ctx context.Context, st *ledger.State) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, ncm FROM materials ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m   ledger.Material
			ncm sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &ncm); err != nil {
			return fmt.Errorf("failed to scan material: %w", err)
		}
		m.NCM = ncm.String
		st.Materials = append(st.Materials, m)
	}
	return rows.Err()
}

func (s *Store) loadBatches(ctx context.Context, st *ledger.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, partner_id, partner_code, sequence, split_path, splits, material_code,
		       service_provider_id, customer_id, weight_kg, status, purchase_price_per_kg,
		       sale_price_per_kg, shipping_json, created_at, updated_at
		FROM batches ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b                                      ledger.Batch
			parent, path, provider, customer, ship sql.NullString
			weight, status, created, updated       string
		)
		err := rows.Scan(&b.ID, &parent, &b.PartnerID, &b.PartnerCode, &b.Sequence, &path, &b.Splits,
			&b.MaterialCode, &provider, &customer, &weight, &status,
			&b.PurchasePricePerKg, &b.SalePricePerKg, &ship, &created, &updated)
		if err != nil {
			return fmt.Errorf("failed to scan batch: %w", err)
		}

		b.ParentID, b.ServiceProviderID, b.CustomerID = parent.String, provider.String, customer.String
		b.Status = ledger.Status(status)
		if path.String != "" {
			b.SplitPath = strings.Split(path.String, "/")
		}
		if b.WeightKg, err = decimal.NewFromString(weight); err != nil {
			return fmt.Errorf("batch %s weight: %w", b.ID, err)
		}
		if ship.Valid {
			b.Shipping = &ledger.Shipping{}
			if err := json.Unmarshal([]byte(ship.String), b.Shipping); err != nil {
				return fmt.Errorf("batch %s shipping: %w", b.ID, err)
			}
		}
		if b.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		if b.UpdatedAt, err = parseTime(updated); err != nil {
			return err
		}
		st.Batches = append(st.Batches, b)
	}
	return rows.Err()
}

func (s *Store) loadTransactions(ctx context.Context, st *ledger.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, batch_code, tx_type, weight_kg, original_weight_kg, date, description
		FROM transactions ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tx           ledger.Transaction
			txType, date string
			weight       string
			description  sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.BatchID, &tx.BatchCode, &txType, &weight,
			&tx.OriginalWeightKg, &date, &description); err != nil {
			return fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = ledger.TransactionType(txType)
		tx.Description = description.String
		if tx.WeightKg, err = decimal.NewFromString(weight); err != nil {
			return fmt.Errorf("transaction %s weight: %w", tx.ID, err)
		}
		if tx.Date, err = parseTime(date); err != nil {
			return err
		}
		st.Transactions = append(st.Transactions, tx)
	}
	return rows.Err()
}

func (s *Store) loadEntries(ctx context.Context, st *ledger.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_type, operation_type, partner_id, batch_id, batch_code, order_number,
		       amount, date, due_date, payment_date, status, description
		FROM financial_entries ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to query financial entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f                                  ledger.FinancialEntry
			entryType, status, amount          string
			date, due                          string
			batchID, batchCode, orderNum, paid sql.NullString
			description                        sql.NullString
		)
		if err := rows.Scan(&f.ID, &entryType, &f.OperationType, &f.PartnerID, &batchID, &batchCode,
			&orderNum, &amount, &date, &due, &paid, &status, &description); err != nil {
			return fmt.Errorf("failed to scan financial entry: %w", err)
		}
		f.Type, f.Status = ledger.EntryType(entryType), ledger.EntryStatus(status)
		f.BatchID, f.BatchCode, f.OrderNumber = batchID.String, batchCode.String, orderNum.String
		f.Description = description.String
		if f.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("financial entry %s amount: %w", f.ID, err)
		}
		if f.Date, err = parseTime(date); err != nil {
			return err
		}
		if f.DueDate, err = parseTime(due); err != nil {
			return err
		}
		if paid.Valid {
			t, err := parseTime(paid.String)
			if err != nil {
				return err
			}
			f.PaymentDate = &t
		}
		st.FinancialEntries = append(st.FinancialEntries, f)
	}
	return rows.Err()
}

func (s *Store) loadOrders(ctx context.Context, st *ledger.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_number, date, customer_id, seller_id, commission_amount, is_fob,
		       items_json, total_amount, status, notes
		FROM orders ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o                                      ledger.Order
			date, commission, items, total, status string
			seller, notes                          sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.OrderNumber, &date, &o.CustomerID, &seller, &commission,
			&o.IsFOB, &items, &total, &status, &notes); err != nil {
			return fmt.Errorf("failed to scan order: %w", err)
		}
		o.SellerID, o.Notes, o.Status = seller.String, notes.String, ledger.OrderStatus(status)
		if o.Date, err = parseTime(date); err != nil {
			return err
		}
		if o.CommissionAmount, err = decimal.NewFromString(commission); err != nil {
			return fmt.Errorf("order %s commission: %w", o.OrderNumber, err)
		}
		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return fmt.Errorf("order %s total: %w", o.OrderNumber, err)
		}
		if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
			return fmt.Errorf("order %s items: %w", o.OrderNumber, err)
		}
		st.Orders = append(st.Orders, o)
	}
	return rows.Err()
}

// Reset deletes all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	return s.Save(ctx, ledger.NewState())
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", raw, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
