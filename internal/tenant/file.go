package tenant

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mallquest/mallquest/internal/domain"
)

// fileDoc is the on-disk shape of the tenant directory, the persistence
// layer behind the `tenant add|list` CLI subcommand: the Registry itself is
// in-memory and rebuilt from this file at every process start, mirroring
// the teacher's config.yaml-at-startup convention rather than adding a
// dedicated tenants table to the sharded schema.
type fileDoc struct {
	Tenants []domain.Tenant `yaml:"tenants"`
}

// LoadFromFile builds a Registry from a YAML tenant directory. A missing
// file yields an empty registry rather than an error, since a fresh
// deployment has no tenants yet.
func LoadFromFile(path string) (*Registry, error) {
	r := New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: read %s: %w", path, err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tenant: parse %s: %w", path, err)
	}
	for _, t := range doc.Tenants {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SaveToFile writes the registry's current tenants back to path.
func (r *Registry) SaveToFile(path string) error {
	r.mu.RLock()
	doc := fileDoc{Tenants: make([]domain.Tenant, 0, len(r.byID))}
	for _, t := range r.byID {
		doc.Tenants = append(doc.Tenants, t)
	}
	r.mu.RUnlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tenant: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tenant: write %s: %w", path, err)
	}
	return nil
}
