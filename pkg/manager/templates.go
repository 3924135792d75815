package manager

import (
	"time"

	"github.com/google/uuid"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/template"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Template administration permission, fleet-scoped like node management
const PermTemplateManage = "template.manage"

// ImportTemplate parses a template document (native JSON or a foreign
// panel's JSON/YAML export) and persists the canonical form.
func (m *Manager) ImportTemplate(actor string, raw []byte) (*types.Template, error) {
	if err := m.Evaluator.CanFleet(actor, PermTemplateManage); err != nil {
		return nil, err
	}

	tpl, err := template.Import(raw)
	if err != nil {
		return nil, err
	}
	tpl.ID = uuid.New().String()
	now := time.Now()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := m.store.CreateTemplate(tpl); err != nil {
		return nil, err
	}
	m.Auditor.Record(actor, "template.import", "template", tpl.ID, map[string]string{"name": tpl.Name})
	return tpl, nil
}

// CreateTemplate persists an already-canonical template
func (m *Manager) CreateTemplate(actor string, tpl *types.Template) (*types.Template, error) {
	if err := m.Evaluator.CanFleet(actor, PermTemplateManage); err != nil {
		return nil, err
	}
	if tpl.Name == "" || tpl.Image == "" || tpl.Startup == "" {
		return nil, errdefs.Validation("template needs name, image, and startup")
	}

	tpl.ID = uuid.New().String()
	now := time.Now()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := m.store.CreateTemplate(tpl); err != nil {
		return nil, err
	}
	m.Auditor.Record(actor, "template.create", "template", tpl.ID, map[string]string{"name": tpl.Name})
	return tpl, nil
}

// GetTemplate returns one template. Templates are readable by any
// authenticated principal; they hold no secrets.
func (m *Manager) GetTemplate(actor, id string) (*types.Template, error) {
	return m.store.GetTemplate(id)
}

// ListTemplates returns every template
func (m *Manager) ListTemplates(actor string) ([]*types.Template, error) {
	return m.store.ListTemplates()
}

// DeleteTemplate removes a template no workload references
func (m *Manager) DeleteTemplate(actor, id string) error {
	if err := m.Evaluator.CanFleet(actor, PermTemplateManage); err != nil {
		return err
	}
	workloads, err := m.store.ListWorkloads()
	if err != nil {
		return err
	}
	for _, w := range workloads {
		if w.TemplateID == id {
			return errdefs.Newf(errdefs.KindInvalidState,
				"template is in use by workload %s", w.ID)
		}
	}
	if err := m.store.DeleteTemplate(id); err != nil {
		return err
	}
	m.Auditor.Record(actor, "template.delete", "template", id, nil)
	return nil
}
