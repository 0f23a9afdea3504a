/*
Package workbook encodes the engine state as an .xlsx spreadsheet.

PURPOSE:
  The operation's records traditionally live in a spreadsheet. This package
  exports the full state into one sheet per collection and imports such a
  workbook back as a complete state (full-state substitution, never a merge).

SHEET LAYOUT:
  Partners | Materials | Batches | Transactions | FinancialEntries | Orders

  Row 1 holds the column headers; data starts at row 2. Columns are located
  by header name on import, so reordering columns in a spreadsheet program
  is harmless. Unknown columns are ignored.

ENCODING:
  - decimals: plain strings ("1250.5"), never floats
  - times: RFC 3339
  - partner roles: comma separated
  - batch split path: "/" separated ("E-01/S-02")
  - batch shipping and order items: a JSON string in one cell

SEE ALSO:
  - store.go: file-backed ledger.Store over this codec
  - api/handlers.go: export/import endpoints
*/
package workbook

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/green/recycling-ledger/ledger"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	SheetPartners     = "Partners"
	SheetMaterials    = "Materials"
	SheetBatches      = "Batches"
	SheetTransactions = "Transactions"
	SheetEntries      = "FinancialEntries"
	SheetOrders       = "Orders"
)

// ContentType is the MIME type of an .xlsx file.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = map[string][]string{
	SheetPartners:  {"id", "code", "name", "roles", "document", "email", "phone", "address", "contact_person"},
	SheetMaterials: {"id", "code", "name", "ncm"},
	SheetBatches: {"id", "code", "parent_id", "partner_id", "partner_code", "sequence", "split_path", "splits",
		"material_code", "service_provider_id", "customer_id", "weight_kg", "status",
		"purchase_price_per_kg", "sale_price_per_kg", "shipping", "created_at", "updated_at"},
	SheetTransactions: {"id", "batch_id", "batch_code", "type", "weight_kg", "original_weight_kg", "date", "description"},
	SheetEntries: {"id", "type", "operation_type", "partner_id", "batch_id", "batch_code", "order_number",
		"amount", "date", "due_date", "payment_date", "status", "description"},
	SheetOrders: {"id", "order_number", "date", "customer_id", "seller_id", "commission_amount", "is_fob",
		"items", "total_amount", "status", "notes"},
}

var sheetOrder = []string{SheetPartners, SheetMaterials, SheetBatches, SheetTransactions, SheetEntries, SheetOrders}

// =============================================================================
// ENCODE
// =============================================================================

// Encode writes st as an .xlsx workbook to w.
func Encode(w io.Writer, st *ledger.State) error {
	f, err := Build(st)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Build renders st into a new workbook.
func Build(st *ledger.State) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetOrder[0]); err != nil {
		return nil, err
	}
	for _, sheet := range sheetOrder[1:] {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	rows := map[string][][]any{
		SheetPartners:     partnerRows(st.Partners),
		SheetMaterials:    materialRows(st.Materials),
		SheetTransactions: transactionRows(st.Transactions),
		SheetEntries:      entryRows(st.FinancialEntries),
	}
	var err error
	if rows[SheetBatches], err = batchRows(st.Batches); err != nil {
		return nil, err
	}
	if rows[SheetOrders], err = orderRows(st.Orders); err != nil {
		return nil, err
	}

	for _, sheet := range sheetOrder {
		header := make([]any, len(headers[sheet]))
		for i, h := range headers[sheet] {
			header[i] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, err
		}
		for i, row := range rows[sheet] {
			if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(i+2), &row); err != nil {
				return nil, fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
			}
		}
	}
	return f, nil
}

func partnerRows(partners []ledger.Partner) [][]any {
	out := make([][]any, len(partners))
	for i, p := range partners {
		out[i] = []any{p.ID, p.Code, p.Name, p.Roles.String(), p.Document, p.Email, p.Phone, p.Address, p.ContactPerson}
	}
	return out
}

func materialRows(materials []ledger.Material) [][]any {
	out := make([][]any, len(materials))
	for i, m := range materials {
		out[i] = []any{m.ID, m.Code, m.Name, m.NCM}
	}
	return out
}

func batchRows(batches []ledger.Batch) ([][]any, error) {
	out := make([][]any, len(batches))
	for i, b := range batches {
		shipping := ""
		if b.Shipping != nil {
			raw, err := json.Marshal(b.Shipping)
			if err != nil {
				return nil, fmt.Errorf("batch %s shipping: %w", b.Code(), err)
			}
			shipping = string(raw)
		}
		out[i] = []any{
			b.ID, b.Code(), b.ParentID, b.PartnerID, b.PartnerCode, strconv.Itoa(b.Sequence),
			strings.Join(b.SplitPath, "/"), strconv.Itoa(b.Splits), b.MaterialCode,
			b.ServiceProviderID, b.CustomerID, b.WeightKg.String(), string(b.Status),
			nullDecimal(b.PurchasePricePerKg), nullDecimal(b.SalePricePerKg), shipping,
			formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
		}
	}
	return out, nil
}

func transactionRows(txs []ledger.Transaction) [][]any {
	out := make([][]any, len(txs))
	for i, tx := range txs {
		out[i] = []any{
			tx.ID, tx.BatchID, tx.BatchCode, string(tx.Type), tx.WeightKg.String(),
			nullDecimal(tx.OriginalWeightKg), formatTime(tx.Date), tx.Description,
		}
	}
	return out
}

func entryRows(entries []ledger.FinancialEntry) [][]any {
	out := make([][]any, len(entries))
	for i, f := range entries {
		paid := ""
		if f.PaymentDate != nil {
			paid = formatTime(*f.PaymentDate)
		}
		out[i] = []any{
			f.ID, string(f.Type), f.OperationType, f.PartnerID, f.BatchID, f.BatchCode, f.OrderNumber,
			f.Amount.String(), formatTime(f.Date), formatTime(f.DueDate), paid, string(f.Status), f.Description,
		}
	}
	return out
}

func orderRows(orders []ledger.Order) ([][]any, error) {
	out := make([][]any, len(orders))
	for i, o := range orders {
		items, err := json.Marshal(o.Items)
		if err != nil {
			return nil, fmt.Errorf("order %s items: %w", o.OrderNumber, err)
		}
		out[i] = []any{
			o.ID, o.OrderNumber, formatTime(o.Date), o.CustomerID, o.SellerID,
			o.CommissionAmount.String(), strconv.FormatBool(o.IsFOB), string(items),
			o.TotalAmount.String(), string(o.Status), o.Notes,
		}
	}
	return out, nil
}

// =============================================================================
// DECODE
// =============================================================================

// Decode reads a workbook produced by Encode (or edited by hand) into a new
// state. Missing sheets decode as empty collections.
func Decode(r io.Reader) (*ledger.State, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	st := ledger.NewState()
	for _, sheet := range sheetOrder {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		columns := indexHeader(rows[0])
		for n, raw := range rows[1:] {
			rec := record{columns: columns, cells: raw}
			if rec.empty() {
				continue
			}
			if err := decodeRow(st, sheet, rec); err != nil {
				return nil, fmt.Errorf("sheet %s row %d: %w", sheet, n+2, err)
			}
		}
	}
	return st, nil
}

func decodeRow(st *ledger.State, sheet string, rec record) error {
	switch sheet {
	case SheetPartners:
		roles, err := ledger.ParseRoleSet(rec.get("roles"))
		if err != nil {
			return err
		}
		st.Partners = append(st.Partners, ledger.Partner{
			ID:            rec.get("id"),
			Code:          rec.get("code"),
			Name:          rec.get("name"),
			Roles:         roles,
			Document:      rec.get("document"),
			Email:         rec.get("email"),
			Phone:         rec.get("phone"),
			Address:       rec.get("address"),
			ContactPerson: rec.get("contact_person"),
		})

	case SheetMaterials:
		st.Materials = append(st.Materials, ledger.Material{
			ID:   rec.get("id"),
			Code: rec.get("code"),
			Name: rec.get("name"),
			NCM:  rec.get("ncm"),
		})

	case SheetBatches:
		b, err := decodeBatch(rec)
		if err != nil {
			return err
		}
		st.Batches = append(st.Batches, b)

	case SheetTransactions:
		tx := ledger.Transaction{
			ID:          rec.get("id"),
			BatchID:     rec.get("batch_id"),
			BatchCode:   rec.get("batch_code"),
			Type:        ledger.TransactionType(rec.get("type")),
			Description: rec.get("description"),
		}
		var err error
		if tx.WeightKg, err = rec.decimalValue("weight_kg"); err != nil {
			return err
		}
		if tx.OriginalWeightKg, err = rec.nullDecimalValue("original_weight_kg"); err != nil {
			return err
		}
		if tx.Date, err = rec.timeValue("date"); err != nil {
			return err
		}
		st.Transactions = append(st.Transactions, tx)

	case SheetEntries:
		entry := ledger.FinancialEntry{
			ID:            rec.get("id"),
			Type:          ledger.EntryType(rec.get("type")),
			OperationType: rec.get("operation_type"),
			PartnerID:     rec.get("partner_id"),
			BatchID:       rec.get("batch_id"),
			BatchCode:     rec.get("batch_code"),
			OrderNumber:   rec.get("order_number"),
			Status:        ledger.EntryStatus(rec.get("status")),
			Description:   rec.get("description"),
		}
		var err error
		if entry.Amount, err = rec.decimalValue("amount"); err != nil {
			return err
		}
		if entry.Date, err = rec.timeValue("date"); err != nil {
			return err
		}
		if entry.DueDate, err = rec.timeValue("due_date"); err != nil {
			return err
		}
		if rec.get("payment_date") != "" {
			paid, err := rec.timeValue("payment_date")
			if err != nil {
				return err
			}
			entry.PaymentDate = &paid
		}
		st.FinancialEntries = append(st.FinancialEntries, entry)

	case SheetOrders:
		o, err := decodeOrder(rec)
		if err != nil {
			return err
		}
		st.Orders = append(st.Orders, o)
	}
	return nil
}

func decodeBatch(rec record) (ledger.Batch, error) {
	b := ledger.Batch{
		ID:                rec.get("id"),
		ParentID:          rec.get("parent_id"),
		PartnerID:         rec.get("partner_id"),
		PartnerCode:       rec.get("partner_code"),
		MaterialCode:      rec.get("material_code"),
		ServiceProviderID: rec.get("service_provider_id"),
		CustomerID:        rec.get("customer_id"),
		Status:            ledger.Status(rec.get("status")),
	}
	var err error
	if b.Sequence, err = rec.intValue("sequence"); err != nil {
		return b, err
	}
	if b.Splits, err = rec.intValue("splits"); err != nil {
		return b, err
	}
	if path := rec.get("split_path"); path != "" {
		b.SplitPath = strings.Split(path, "/")
	}
	if b.WeightKg, err = rec.decimalValue("weight_kg"); err != nil {
		return b, err
	}
	if b.PurchasePricePerKg, err = rec.nullDecimalValue("purchase_price_per_kg"); err != nil {
		return b, err
	}
	if b.SalePricePerKg, err = rec.nullDecimalValue("sale_price_per_kg"); err != nil {
		return b, err
	}
	if raw := rec.get("shipping"); raw != "" {
		b.Shipping = &ledger.Shipping{}
		if err := json.Unmarshal([]byte(raw), b.Shipping); err != nil {
			return b, fmt.Errorf("shipping: %w", err)
		}
	}
	if b.CreatedAt, err = rec.timeValue("created_at"); err != nil {
		return b, err
	}
	if b.UpdatedAt, err = rec.timeValue("updated_at"); err != nil {
		return b, err
	}
	return b, nil
}

func decodeOrder(rec record) (ledger.Order, error) {
	o := ledger.Order{
		ID:          rec.get("id"),
		OrderNumber: rec.get("order_number"),
		CustomerID:  rec.get("customer_id"),
		SellerID:    rec.get("seller_id"),
		Status:      ledger.OrderStatus(rec.get("status")),
		Notes:       rec.get("notes"),
	}
	var err error
	if o.Date, err = rec.timeValue("date"); err != nil {
		return o, err
	}
	if o.CommissionAmount, err = rec.decimalValue("commission_amount"); err != nil {
		return o, err
	}
	if o.TotalAmount, err = rec.decimalValue("total_amount"); err != nil {
		return o, err
	}
	if raw := rec.get("is_fob"); raw != "" {
		if o.IsFOB, err = strconv.ParseBool(raw); err != nil {
			return o, fmt.Errorf("is_fob: %w", err)
		}
	}
	if raw := rec.get("items"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &o.Items); err != nil {
			return o, fmt.Errorf("items: %w", err)
		}
	}
	return o, nil
}

// =============================================================================
// CELL HELPERS
// =============================================================================

func indexHeader(row []string) map[string]int {
	columns := make(map[string]int, len(row))
	for i, h := range row {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return columns
}

// record is one data row addressed by header name. Spreadsheet rows drop
// trailing empty cells, so short rows read as empty strings.
type record struct {
	columns map[string]int
	cells   []string
}

func (r record) get(name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r record) empty() bool {
	for _, c := range r.cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (r record) decimalValue(name string) (decimal.Decimal, error) {
	raw := r.get(name)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func (r record) nullDecimalValue(name string) (decimal.NullDecimal, error) {
	if r.get(name) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := r.decimalValue(name)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func (r record) intValue(name string) (int, error) {
	raw := r.get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func (r record) timeValue(name string) (time.Time, error) {
	raw := r.get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func nullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
