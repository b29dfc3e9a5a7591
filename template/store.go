package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	iface "PartInspect/interface"

	"gopkg.in/yaml.v3"
)

// Store reads and writes template YAML files in one directory, one
// file per template id. Loaded templates pass through the builder so
// everything the engine sees is normalized.
type Store struct {
	Dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("template store: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+".yaml")
}

func (s *Store) Load(id string) (*iface.Template, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("template store: load %s: %w", id, err)
	}
	var raw iface.Template
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("template store: parse %s: %w", id, err)
	}
	if raw.ID == "" {
		raw.ID = id
	}
	if raw.ID != id {
		return nil, fmt.Errorf("template store: file %s declares id %s", id, raw.ID)
	}

	b := NewBuilder(raw.ID).
		PartType(raw.PartType).
		GlobalTolerance(raw.GlobalToleranceX, raw.GlobalToleranceY).
		Topology(raw.Topology)
	for _, f := range raw.Features {
		b.Feature(f)
	}
	return b.Build()
}

func (s *Store) Save(tpl *iface.Template) error {
	data, err := yaml.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("template store: marshal %s: %w", tpl.ID, err)
	}
	if err := os.WriteFile(s.path(tpl.ID), data, 0o644); err != nil {
		return fmt.Errorf("template store: save %s: %w", tpl.ID, err)
	}
	return nil
}

// List returns the ids of every stored template.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("template store: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return ids, nil
}
