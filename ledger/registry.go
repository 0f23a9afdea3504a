package ledger

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// REFERENCE REGISTRIES - Partners and Materials
// =============================================================================
// Both registries are keyed collections with a human-assigned 3-digit code.
// Deleting an entry still referenced by a batch is rejected.

type PartnerParams struct {
	Code          string
	Name          string
	Roles         RoleSet
	Document      string
	Email         string
	Phone         string
	Address       string
	ContactPerson string
}

func (p PartnerParams) validate() error {
	if !validCode(p.Code) {
		return fmt.Errorf("partner code %q: %w", p.Code, ErrInvalidCode)
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "required")
	}
	if len(p.Roles) == 0 {
		return invalid("roles", "at least one role is required")
	}
	for _, r := range p.Roles {
		if !r.Valid() {
			return invalid("roles", "unknown role %q", r)
		}
	}
	return nil
}

func (e *Engine) Partners() []Partner {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone().Partners
}

func (e *Engine) Partner(id string) (Partner, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.state.partnerIndex(id)
	if i < 0 {
		return Partner{}, ErrPartnerNotFound
	}
	p := e.state.Partners[i]
	p.Roles = append(RoleSet(nil), p.Roles...)
	return p, nil
}

func (e *Engine) PartnerByCode(code string) (Partner, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.state.partnerByCode(code)
	if i < 0 {
		return Partner{}, ErrPartnerNotFound
	}
	p := e.state.Partners[i]
	p.Roles = append(RoleSet(nil), p.Roles...)
	return p, nil
}

func (e *Engine) CreatePartner(ctx context.Context, p PartnerParams) (*Partner, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var created Partner
	err := e.commit(ctx, "partner_create", func(s *State) error {
		if s.partnerByCode(p.Code) >= 0 {
			return fmt.Errorf("partner code %s: %w", p.Code, ErrDuplicateCode)
		}
		created = p.toPartner(e.newID())
		s.Partners = append(s.Partners, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdatePartner replaces a partner's fields. The code can only change while
// no batch originates from the partner, since batches carry the code in their
// display key.
func (e *Engine) UpdatePartner(ctx context.Context, id string, p PartnerParams) (*Partner, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var updated Partner
	err := e.commit(ctx, "partner_update", func(s *State) error {
		i := s.partnerIndex(id)
		if i < 0 {
			return ErrPartnerNotFound
		}
		if j := s.partnerByCode(p.Code); j >= 0 && j != i {
			return fmt.Errorf("partner code %s: %w", p.Code, ErrDuplicateCode)
		}
		if current := s.Partners[i].Code; p.Code != current {
			if used := s.batchesReferencing(func(b Batch) bool { return b.PartnerID == id }); len(used) > 0 {
				return &DeletionConflictError{Kind: "partner", Code: current, BatchCodes: used}
			}
		}
		updated = p.toPartner(id)
		s.Partners[i] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (e *Engine) DeletePartner(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.commit(ctx, "partner_delete", func(s *State) error {
		i := s.partnerIndex(id)
		if i < 0 {
			return ErrPartnerNotFound
		}
		used := s.batchesReferencing(func(b Batch) bool {
			return b.PartnerID == id || b.ServiceProviderID == id || b.CustomerID == id
		})
		if len(used) > 0 {
			return &DeletionConflictError{Kind: "partner", Code: s.Partners[i].Code, BatchCodes: used}
		}
		s.Partners = append(s.Partners[:i], s.Partners[i+1:]...)
		return nil
	})
}

func (p PartnerParams) toPartner(id string) Partner {
	return Partner{
		ID:            id,
		Code:          p.Code,
		Name:          strings.TrimSpace(p.Name),
		Roles:         NewRoleSet(p.Roles...),
		Document:      p.Document,
		Email:         p.Email,
		Phone:         p.Phone,
		Address:       p.Address,
		ContactPerson: p.ContactPerson,
	}
}

// =============================================================================
// MATERIALS
// =============================================================================

type MaterialParams struct {
	Code string
	Name string
	NCM  string
}

func (p MaterialParams) validate() error {
	if !validCode(p.Code) {
		return fmt.Errorf("material code %q: %w", p.Code, ErrInvalidCode)
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "required")
	}
	return nil
}

func (e *Engine) Materials() []Material {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Material(nil), e.state.Materials...)
}

func (e *Engine) Material(id string) (Material, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.state.materialIndex(id)
	if i < 0 {
		return Material{}, ErrMaterialNotFound
	}
	return e.state.Materials[i], nil
}

func (e *Engine) MaterialByCode(code string) (Material, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.state.materialByCode(code)
	if i < 0 {
		return Material{}, ErrMaterialNotFound
	}
	return e.state.Materials[i], nil
}

func (e *Engine) CreateMaterial(ctx context.Context, p MaterialParams) (*Material, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var created Material
	err := e.commit(ctx, "material_create", func(s *State) error {
		if s.materialByCode(p.Code) >= 0 {
			return fmt.Errorf("material code %s: %w", p.Code, ErrDuplicateCode)
		}
		created = Material{ID: e.newID(), Code: p.Code, Name: strings.TrimSpace(p.Name), NCM: p.NCM}
		s.Materials = append(s.Materials, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateMaterial edits a material. Its code cannot change while batches
// reference it, since batches hold the material by code.
func (e *Engine) UpdateMaterial(ctx context.Context, id string, p MaterialParams) (*Material, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var updated Material
	err := e.commit(ctx, "material_update", func(s *State) error {
		i := s.materialIndex(id)
		if i < 0 {
			return ErrMaterialNotFound
		}
		current := s.Materials[i]
		if p.Code != current.Code {
			if s.materialByCode(p.Code) >= 0 {
				return fmt.Errorf("material code %s: %w", p.Code, ErrDuplicateCode)
			}
			if used := s.batchesReferencing(func(b Batch) bool { return b.MaterialCode == current.Code }); len(used) > 0 {
				return &DeletionConflictError{Kind: "material", Code: current.Code, BatchCodes: used}
			}
		}
		updated = Material{ID: id, Code: p.Code, Name: strings.TrimSpace(p.Name), NCM: p.NCM}
		s.Materials[i] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (e *Engine) DeleteMaterial(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.commit(ctx, "material_delete", func(s *State) error {
		i := s.materialIndex(id)
		if i < 0 {
			return ErrMaterialNotFound
		}
		code := s.Materials[i].Code
		if used := s.batchesReferencing(func(b Batch) bool { return b.MaterialCode == code }); len(used) > 0 {
			return &DeletionConflictError{Kind: "material", Code: code, BatchCodes: used}
		}
		s.Materials = append(s.Materials[:i], s.Materials[i+1:]...)
		return nil
	})
}
