/*
handlers.go - HTTP API handlers for the recycling ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization and request validation, and delegates every rule to
  the engine.

ENDPOINTS:
  Reference data:
    GET    /api/partners                  List partners
    POST   /api/partners                  Create partner
    GET    /api/partners/{id}             Get partner
    PUT    /api/partners/{id}             Update partner
    DELETE /api/partners/{id}             Delete partner (409 while referenced)
    ...    /api/materials                 Same set for materials

  Batches:
    GET    /api/batches?status=a,b        List batches
    GET    /api/batches/{id}              Get batch with next statuses
    DELETE /api/batches/{id}              Delete batch (history is kept)
    GET    /api/batches/{id}/transactions Weight history of one batch
    GET    /api/batches/{id}/financial-entries
    POST   /api/batches/{id}/transition   Move to next status (may split)
    POST   /api/purchases                 Record a purchase (new raw batch)
    GET    /api/transactions              History (?q=&batch_id=&type=&from=&to=)

  Financial ledger:
    GET    /api/financial-entries         ?type=&status=&batch_id=
    PUT    /api/financial-entries/{id}    Edit due date / description
    POST   /api/financial-entries/{id}/status  pending -> paid
    DELETE /api/financial-entries/{id}

  Orders:
    GET|POST /api/orders, GET|PUT|DELETE /api/orders/{id}
    POST   /api/orders/{id}/cancel

  Reports / data:
    GET    /api/reports/inventory
    GET    /api/reports/financial
    GET    /api/export                    Download .xlsx workbook
    POST   /api/import                    Upload .xlsx (replaces all data)
    POST   /api/demo/seed                 Load demo reference data
    GET    /api/scenarios                 List preset scenarios
    GET    /api/scenarios/current         Last loaded preset
    POST   /api/scenarios/load            Reset and load a preset
    GET    /api/backups                   Backup run history
    POST   /api/backups                   Write a backup now

ERROR HANDLING:
  Errors are returned as JSON (ErrorResponse) with HTTP status:
  - 400: Validation errors, invalid input, illegal transitions
  - 404: Resource not found
  - 409: Conflict (duplicate code, referenced data, cancelled order)
  - 500: Internal errors (including failed persistence)

SECURITY NOTE:
  No authentication or authorization. Single-operator deployment.

SEE ALSO:
  - dto.go: Request/response data structures
  - demo.go: Demo data loader
  - scenarios.go: Preset scenario loader
  - scheduler.go: Workbook backup scheduler
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/green/recycling-ledger/ledger"
	"github.com/green/recycling-ledger/workbook"
	"github.com/sirupsen/logrus"
)

// maxImportBytes caps uploaded workbooks.
const maxImportBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *ledger.Engine
	Log     logrus.FieldLogger
	Backups *BackupScheduler // nil when backups are disabled

	mu              sync.Mutex // guards currentScenario
	currentScenario string
}

// NewHandler creates a new handler over the given engine.
func NewHandler(engine *ledger.Engine, log logrus.FieldLogger) *Handler {
	return &Handler{Engine: engine, Log: log}
}

// =============================================================================
// PARTNER HANDLERS
// =============================================================================

func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Engine.Partners()))
}

func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Partner(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req PartnerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Engine.CreatePartner(r.Context(), req.params())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdatePartner(w http.ResponseWriter, r *http.Request) {
	var req PartnerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Engine.UpdatePartner(r.Context(), chi.URLParam(r, "id"), req.params())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePartner(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeletePartner(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MATERIAL HANDLERS
// =============================================================================

func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Engine.Materials()))
}

func (h *Handler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.Material(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req MaterialRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Engine.CreateMaterial(r.Context(), req.params())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) UpdateMaterial(w http.ResponseWriter, r *http.Request) {
	var req MaterialRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Engine.UpdateMaterial(r.Context(), chi.URLParam(r, "id"), req.params())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteMaterial(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// ListBatches returns batches, optionally filtered by ?status=finished,extruded.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	var statuses []ledger.Status
	for _, raw := range splitList(r.URL.Query()["status"]) {
		s := ledger.Status(raw)
		if !s.Valid() {
			h.fail(w, r, fieldErrors{"status": "oneof"})
			return
		}
		statuses = append(statuses, s)
	}

	batches := h.Engine.Batches(statuses...)
	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Batch(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(b))
}

func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBatchTransactions returns the weight history of a batch. History
// outlives the batch, so a deleted batch still answers with its records.
func (h *Handler) GetBatchTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Engine.BatchTransactions(chi.URLParam(r, "id"))))
}

func (h *Handler) GetBatchFinancialEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Engine.BatchFinancialEntries(chi.URLParam(r, "id"))))
}

// RecordPurchase creates a raw batch from an inbound purchase.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.Engine.RecordPurchase(r.Context(), ledger.PurchaseParams{
		PartnerID:    req.PartnerID,
		MaterialCode: req.MaterialCode,
		WeightKg:     req.WeightKg,
		PricePerKg:   req.PricePerKg,
		Date:         date,
		DueDate:      due,
		Shipping:     req.Shipping.shipping(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(*b))
}

// TransitionBatch moves a batch to the requested status.
func (h *Handler) TransitionBatch(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Engine.TransitionBatch(r.Context(), chi.URLParam(r, "id"), ledger.Status(req.Status), ledger.TransitionContext{
		WeightKg:      req.WeightKg,
		PartnerID:     req.PartnerID,
		PricePerKg:    req.PricePerKg,
		MaterialCode:  req.MaterialCode,
		Date:          date,
		DueDate:       due,
		Shipping:      req.Shipping.shipping(),
		OrderID:       req.OrderID,
		OrderItemID:   req.OrderItemID,
		FinalizeOrder: req.FinalizeOrder,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := TransitionResponse{
		Batch:            toBatchDTO(res.Batch),
		Split:            res.Split(),
		Transactions:     nonNil(res.Transactions),
		FinancialEntries: nonNil(res.FinancialEntries),
		Order:            res.Order,
	}
	if res.Parent != nil {
		parent := toBatchDTO(*res.Parent)
		resp.Parent = &parent
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTransactions returns the history, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.HistoryFilter{
		Query:   q.Get("q"),
		BatchID: q.Get("batch_id"),
	}
	for _, raw := range splitList(q["type"]) {
		t := ledger.TransactionType(raw)
		if !t.Valid() {
			h.fail(w, r, fieldErrors{"type": "oneof"})
			return
		}
		filter.Types = append(filter.Types, t)
	}
	var err error
	if filter.From, err = parseDate("from", q.Get("from")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = parseDate("to", q.Get("to")); err != nil {
		h.fail(w, r, err)
		return
	}
	if raw := q.Get("to"); len(raw) == len("2006-01-02") {
		// a bare day includes the whole day
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	writeJSON(w, http.StatusOK, nonNil(h.Engine.History(filter)))
}

// =============================================================================
// FINANCIAL ENTRY HANDLERS
// =============================================================================

func (h *Handler) ListFinancialEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.EntryFilter{
		Type:    ledger.EntryType(q.Get("type")),
		Status:  ledger.EntryStatus(q.Get("status")),
		BatchID: q.Get("batch_id"),
	}
	if filter.Type != "" && filter.Type != ledger.EntryPayable && filter.Type != ledger.EntryReceivable {
		h.fail(w, r, fieldErrors{"type": "oneof"})
		return
	}
	if filter.Status != "" && filter.Status != ledger.EntryPending && filter.Status != ledger.EntryPaid {
		h.fail(w, r, fieldErrors{"status": "oneof"})
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Engine.FinancialEntries(filter)))
}

func (h *Handler) UpdateFinancialEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryUpdateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	patch := ledger.FinancialEntryPatch{Description: req.Description}
	if req.DueDate != nil {
		due, err := parseDate("due_date", *req.DueDate)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		patch.DueDate = &due
	}

	entry, err := h.Engine.UpdateFinancialEntry(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) SetFinancialEntryStatus(w http.ResponseWriter, r *http.Request) {
	var req EntryStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var paymentDate *time.Time
	if req.PaymentDate != "" {
		pd, err := parseDate("payment_date", req.PaymentDate)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		paymentDate = &pd
	}

	entry, err := h.Engine.SetFinancialEntryStatus(r.Context(), chi.URLParam(r, "id"), ledger.EntryStatus(req.Status), paymentDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) DeleteFinancialEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteFinancialEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Engine.Orders()))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Engine.Order(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	due, err := parseDate("commission_due_date", req.CommissionDueDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.Engine.CreateOrder(r.Context(), ledger.OrderParams{
		OrderNumber:      req.OrderNumber,
		Date:             date,
		CustomerID:       req.CustomerID,
		SellerID:         req.SellerID,
		CommissionAmount: req.CommissionAmount,
		CommissionDue:    due,
		IsFOB:            req.IsFOB,
		Items:            itemParams(req.Items),
		Status:           ledger.OrderStatus(req.Status),
		Notes:            req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderUpdateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	patch := ledger.OrderPatch{
		CustomerID: req.CustomerID,
		SellerID:   req.SellerID,
		IsFOB:      req.IsFOB,
		Notes:      req.Notes,
	}
	if req.Date != nil {
		date, err := parseDate("date", *req.Date)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		patch.Date = &date
	}
	if req.Items != nil {
		items := itemParams(*req.Items)
		patch.Items = &items
	}
	if req.Status != nil {
		status := ledger.OrderStatus(*req.Status)
		patch.Status = &status
	}

	o, err := h.Engine.UpdateOrder(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Engine.CancelOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) InventoryReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.InventorySummary())
}

func (h *Handler) FinancialReport(w http.ResponseWriter, r *http.Request) {
	totals := h.Engine.FinancialTotals()
	writeJSON(w, http.StatusOK, FinancialReportDTO{FinancialTotals: totals, Balance: totals.Balance()})
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// Export streams the whole state as an .xlsx workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := workbook.Build(h.Engine.Snapshot())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	name := fmt.Sprintf("recycling-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", workbook.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	if err := f.Write(w); err != nil {
		h.Log.WithError(err).Error("failed to write workbook")
	}
}

// Import replaces the whole state with an uploaded workbook. The body is
// either the raw .xlsx or a multipart form with a "file" field.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing upload field \"file\"", err)
			return
		}
		defer file.Close()
		body = file
	}

	st, err := workbook.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid workbook", err)
		return
	}
	if err := h.Engine.Replace(r.Context(), st); err != nil {
		h.fail(w, r, err)
		return
	}

	h.Log.WithField("batches", len(st.Batches)).Info("workbook imported")
	writeJSON(w, http.StatusOK, ImportResponse{
		Partners:         len(st.Partners),
		Materials:        len(st.Materials),
		Batches:          len(st.Batches),
		Transactions:     len(st.Transactions),
		FinancialEntries: len(st.FinancialEntries),
		Orders:           len(st.Orders),
	})
}

// SeedDemo loads the demo reference data and a first raw batch.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	res, err := SeedDemo(r.Context(), h.Engine)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// =============================================================================
// BACKUP HANDLERS
// =============================================================================

// ListBackups returns the recorded backup runs, newest first.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		writeError(w, http.StatusNotFound, "Backups disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Backups.Runs())
}

// RunBackup writes a backup right away.
func (h *Handler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		writeError(w, http.StatusNotFound, "Backups disabled", nil)
		return
	}
	run, err := h.Backups.RunNow(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, run)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps an error to its HTTP status and writes the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var fields fieldErrors
	if errors.As(err, &fields) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
		return
	}
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: err.Error(),
			Fields:  map[string]string{ve.Field: ve.Message},
		})
		return
	}

	switch {
	case errors.Is(err, errInvalidBody):
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// splitList flattens repeated and comma separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
