package workbook

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/green/recycling-ledger/factory"
	"github.com/green/recycling-ledger/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func fullCycleState(t *testing.T) *ledger.State {
	t.Helper()
	clock := func() time.Time { return testNow }
	f := factory.NewScenarioFactory().WithClock(clock)
	sc, err := f.Parse(factory.FullCycleJSON)
	require.NoError(t, err)

	e := ledger.New(ledger.WithClock(clock))
	_, err = f.Apply(context.Background(), e, sc)
	require.NoError(t, err)

	entry := e.FinancialEntries(ledger.EntryFilter{})[1]
	_, err = e.SetFinancialEntryStatus(context.Background(), entry.ID, ledger.EntryPaid, nil)
	require.NoError(t, err)
	return e.Snapshot()
}

func assertSameState(t *testing.T, want, got *ledger.State) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}

// =============================================================================
// ENCODE / DECODE
// =============================================================================

func TestEncodeDecode_RoundTrip(t *testing.T) {
	// GIVEN: A state touching every sheet
	want := fullCycleState(t)

	// WHEN: It is written to a workbook and read back
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, want))
	got, err := Decode(&buf)
	require.NoError(t, err)

	// THEN: The state is identical
	assertSameState(t, want, got)
	require.NoError(t, got.Validate())
}

func TestBuild_SheetsAndHeaders(t *testing.T) {
	f, err := Build(fullCycleState(t))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, sheetOrder, f.GetSheetList())

	rows, err := f.GetRows(SheetBatches)
	require.NoError(t, err)
	assert.Equal(t, headers[SheetBatches], rows[0])
	require.Len(t, rows, 6)
	assert.Equal(t, "012/001/010", rows[1][1])
}

func TestDecode_HandEditedWorkbook(t *testing.T) {
	// GIVEN: A workbook with only a materials sheet, reordered columns and a blank row
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", SheetMaterials))
	require.NoError(t, f.SetSheetRow(SheetMaterials, "A1", &[]any{"name", "code", "id"}))
	require.NoError(t, f.SetSheetRow(SheetMaterials, "A2", &[]any{"PEBD", "010", "m1"}))
	require.NoError(t, f.SetSheetRow(SheetMaterials, "A4", &[]any{"PP", "020", "m2"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	// WHEN: It is decoded
	st, err := Decode(&buf)
	require.NoError(t, err)

	// THEN: Columns are found by header and missing sheets are empty
	assert.Equal(t, []ledger.Material{
		{ID: "m1", Code: "010", Name: "PEBD"},
		{ID: "m2", Code: "020", Name: "PP"},
	}, st.Materials)
	assert.Empty(t, st.Batches)
}

func TestDecode_Rejections(t *testing.T) {
	t.Run("not a workbook", func(t *testing.T) {
		_, err := Decode(bytes.NewReader([]byte("plain text")))
		assert.Error(t, err)
	})

	t.Run("bad weight cell", func(t *testing.T) {
		f := excelize.NewFile()
		require.NoError(t, f.SetSheetName("Sheet1", SheetTransactions))
		require.NoError(t, f.SetSheetRow(SheetTransactions, "A1", &[]any{"id", "batch_id", "type", "weight_kg", "date"}))
		require.NoError(t, f.SetSheetRow(SheetTransactions, "A2", &[]any{"t1", "b1", "purchase", "heavy", "2025-03-10T09:00:00Z"}))
		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))

		_, err := Decode(&buf)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
	})
}

// =============================================================================
// STORE
// =============================================================================

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "ledger.xlsx"))

	st, err := s.Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, st.Partners)
}

func TestStore_SaveAndReopen(t *testing.T) {
	// GIVEN: An engine persisting to a workbook file
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	want := fullCycleState(t)
	e, err := ledger.Open(context.Background(), NewStore(path))
	require.NoError(t, err)

	// WHEN: A state is imported and the file is reopened
	require.NoError(t, e.Replace(context.Background(), want))
	reopened, err := ledger.Open(context.Background(), NewStore(path))
	require.NoError(t, err)

	// THEN: The workbook carries the whole state
	assertSameState(t, want, reopened.Snapshot())

	// AND: No temporary files are left behind
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestStore_SaveHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore(path).Save(ctx, ledger.NewState())

	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}
