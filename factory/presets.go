package factory

// =============================================================================
// PRESET SCENARIOS
// =============================================================================

// Preset is a built-in scenario.
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	JSON        string `json:"-"`
}

// DemoJSON is the demo reference data plus one raw batch.
const DemoJSON = `{
  "id": "demo",
  "name": "Demo",
  "description": "Two partners, two materials and one raw PEBD batch",
  "partners": [
    {"code": "012", "name": "Fornecedor Exemplo Silva", "roles": ["supplier"]},
    {"code": "045", "name": "Plásticos Nordeste", "roles": ["customer"]}
  ],
  "materials": [
    {"code": "010", "name": "PEBD", "ncm": "3915.10.00"},
    {"code": "020", "name": "PP", "ncm": "3915.90.00"}
  ],
  "purchases": [
    {"ref": "demo-batch", "partner": "012", "material": "010", "weight_kg": 1250}
  ]
}`

// FullCycleJSON exercises every lifecycle edge, a split sale against an
// order with commission, freight and an extrusion round trip.
const FullCycleJSON = `{
  "id": "full-cycle",
  "name": "Full cycle",
  "description": "Purchase, processing loss, extrusion, partial sales against an order",
  "partners": [
    {"code": "012", "name": "Fornecedor Exemplo Silva", "roles": ["supplier"]},
    {"code": "013", "name": "Cooperativa Recicla Mais", "roles": ["supplier", "customer"]},
    {"code": "045", "name": "Plásticos Nordeste", "roles": ["customer"]},
    {"code": "077", "name": "Extrusora Norte", "roles": ["service_provider"]},
    {"code": "088", "name": "Carlos Representações", "roles": ["seller"]}
  ],
  "materials": [
    {"code": "010", "name": "PEBD", "ncm": "3915.10.00"},
    {"code": "020", "name": "PP", "ncm": "3915.90.00"}
  ],
  "orders": [
    {"ref": "o1", "customer": "045", "seller": "088", "commission": 150,
     "items": [{"description": "PEBD granulado", "quantity": 1500, "unit_price": 3.2}]}
  ],
  "purchases": [
    {"ref": "b1", "partner": "012", "material": "010", "weight_kg": 2000,
     "price_per_kg": 2.1, "freight": 350, "days_ago": 20,
     "steps": [
       {"status": "processing"},
       {"status": "finished", "weight_kg": 1880},
       {"status": "extruding", "weight_kg": 800, "partner": "077", "freight": 120, "as": "b1-ext"},
       {"status": "extruded", "batch": "b1-ext", "weight_kg": 770},
       {"status": "sold", "weight_kg": 1000, "partner": "045", "price_per_kg": 3.2,
        "order": "o1", "order_item": 0, "as": "b1-sale"},
       {"status": "sold", "batch": "b1-ext", "weight_kg": 500, "partner": "045",
        "price_per_kg": 3.2, "freight": 90, "order": "o1", "order_item": 0, "as": "b1-ext-sale"}
     ]},
    {"ref": "b2", "partner": "013", "material": "020", "weight_kg": 600, "price_per_kg": 1.8, "days_ago": 3}
  ]
}`

// ReclassificationJSON shows a weight gain and a material reclassification.
const ReclassificationJSON = `{
  "id": "reclassification",
  "name": "Reclassification",
  "description": "Mixed bale finalized as PP with a weighing gain",
  "partners": [
    {"code": "021", "name": "Sucata Central", "roles": ["supplier"]},
    {"code": "045", "name": "Plásticos Nordeste", "roles": ["customer"]}
  ],
  "materials": [
    {"code": "010", "name": "PEBD", "ncm": "3915.10.00"},
    {"code": "020", "name": "PP", "ncm": "3915.90.00"},
    {"code": "099", "name": "Misto", "ncm": "3915.90.00"}
  ],
  "purchases": [
    {"ref": "mix", "partner": "021", "material": "099", "weight_kg": 500, "price_per_kg": 0.9, "days_ago": 7,
     "steps": [
       {"status": "processing"},
       {"status": "finished", "weight_kg": 512, "material": "020"}
     ]}
  ]
}`

var presets = []Preset{
	{ID: "demo", Name: "Demo", Description: "Two partners, two materials and one raw PEBD batch", JSON: DemoJSON},
	{ID: "full-cycle", Name: "Full cycle", Description: "Purchase, processing loss, extrusion, partial sales against an order", JSON: FullCycleJSON},
	{ID: "reclassification", Name: "Reclassification", Description: "Mixed bale finalized as PP with a weighing gain", JSON: ReclassificationJSON},
}

// Presets lists the built-in scenarios.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// LookupPreset finds a built-in scenario by id.
func LookupPreset(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}
