/*
demo.go - Demo data loader

PURPOSE:
  Populates an empty ledger with realistic reference data so the API can be
  explored right away:

    partners:  012 Fornecedor Exemplo Silva (supplier)
               045 Plásticos Nordeste      (customer)
    materials: 010 PEBD  NCM 3915.10.00
               020 PP    NCM 3915.90.00
    batch:     012/001/010 raw, 1250 kg

USAGE VIA API:
  POST /api/demo/seed

NOTE:
  Seeding goes through the regular engine commands, so running it twice is
  rejected with 409 (partner code already in use) and changes nothing.

SEE ALSO:
  - factory/presets.go: DemoJSON
  - scenarios.go: loads any preset over a reset state
*/
package api

import (
	"context"

	"github.com/green/recycling-ledger/factory"
	"github.com/green/recycling-ledger/ledger"
)

// DemoResult lists what SeedDemo created.
type DemoResult struct {
	Partners  []ledger.Partner  `json:"partners"`
	Materials []ledger.Material `json:"materials"`
	Batch     BatchDTO          `json:"batch"`
}

// SeedDemo applies the demo scenario on top of the current state.
func SeedDemo(ctx context.Context, e *ledger.Engine) (*DemoResult, error) {
	f := factory.NewScenarioFactory()
	sc, err := f.Parse(factory.DemoJSON)
	if err != nil {
		return nil, err
	}
	applied, err := f.Apply(ctx, e, sc)
	if err != nil {
		return nil, err
	}

	res := &DemoResult{}
	for _, p := range sc.Partners {
		partner, err := e.Partner(applied.Partners[p.Code])
		if err != nil {
			return nil, err
		}
		res.Partners = append(res.Partners, partner)
	}
	for _, m := range sc.Materials {
		material, err := e.Material(applied.Materials[m.Code])
		if err != nil {
			return nil, err
		}
		res.Materials = append(res.Materials, material)
	}
	b, err := e.Batch(applied.Batches["demo-batch"])
	if err != nil {
		return nil, err
	}
	res.Batch = toBatchDTO(b)
	return res, nil
}
