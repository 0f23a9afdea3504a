/*
scenarios.go - Preset scenario loaders for training and demonstrations

PURPOSE:

	Loads the built-in factory scenarios over an empty ledger so operators
	can explore a realistic dataset: a full purchase-to-sale cycle, a
	reclassification with a weighing gain, or the bare demo data.

HOW SCENARIOS WORK:
 1. Replace the state with an empty one (persisted like any command)
 2. Parse the preset JSON via factory
 3. Issue every command of the scenario through the engine

USAGE VIA API:

	GET  /api/scenarios
	GET  /api/scenarios/current
	POST /api/scenarios/load
	{"scenario_id": "full-cycle"}

NOTE:

	Loading a scenario discards all data. Only use in development/demo environments.

SEE ALSO:
  - factory/presets.go: Scenario definitions
  - demo.go: Demo seed without reset
*/
package api

import (
	"net/http"

	"github.com/green/recycling-ledger/factory"
	"github.com/green/recycling-ledger/ledger"
)

type ScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ScenarioResponse struct {
	Status   string          `json:"status"`
	Scenario factory.Preset  `json:"scenario"`
	Refs     *factory.Result `json:"refs"`
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.Presets())
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	preset, ok := factory.LookupPreset(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

// LoadScenario resets the ledger and loads a preset scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	preset, ok := factory.LookupPreset(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	f := factory.NewScenarioFactory()
	sc, err := f.Parse(preset.JSON)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Engine.Replace(ctx, ledger.NewState()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""

	refs, err := f.Apply(ctx, h.Engine, sc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = preset.ID

	h.Log.WithField("scenario", preset.ID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, ScenarioResponse{Status: "loaded", Scenario: preset, Refs: refs})
}
