// Package iacspec is the intermediate infrastructure spec shared by the
// generation stages. The design stage produces it from the prompt, the
// generate stage renders the code and documentation from it.
package iacspec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/slok/infraware/internal/model"
)

// Version is the current spec document version.
const Version = "v1"

// Document is the intermediate infrastructure spec.
type Document struct {
	Version     string     `yaml:"version,omitempty" json:"version,omitempty"`
	Project     string     `yaml:"project" json:"project"`
	Provider    string     `yaml:"provider" json:"provider"`
	Region      string     `yaml:"region,omitempty" json:"region,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Resources   []Resource `yaml:"resources" json:"resources"`
}

// Resource is a single infrastructure resource of the spec.
type Resource struct {
	Name        string         `yaml:"name" json:"name"`
	Type        string         `yaml:"type" json:"type"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Properties  map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
	DependsOn   []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Parse decodes and validates a YAML spec document.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid spec YAML: %w: %w", model.ErrNotValid, err)
	}

	// The schema validator works on JSON values.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("spec is not representable as JSON: %w: %w", model.ErrNotValid, err)
	}
	var v any
	if err := json.Unmarshal(jsonData, &v); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w: %w", model.ErrNotValid, err)
	}

	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("could not load spec schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("spec does not match schema: %w: %w", model.ErrNotValid, err)
	}

	var doc Document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("decode spec: %w: %w", model.ErrNotValid, err)
	}

	if err := doc.ValidateDependencies(); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Marshal encodes the document as YAML.
func Marshal(doc Document) ([]byte, error) {
	if doc.Version == "" {
		doc.Version = Version
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("could not marshal spec: %w", err)
	}
	return data, nil
}

// ValidateDependencies checks the resource names are unique and the
// dependencies reference existing resources without cycles.
func (d Document) ValidateDependencies() error {
	byName := make(map[string]Resource, len(d.Resources))
	for _, r := range d.Resources {
		if _, ok := byName[r.Name]; ok {
			return fmt.Errorf("duplicated resource %q: %w", r.Name, model.ErrNotValid)
		}
		byName[r.Name] = r
	}

	for _, r := range d.Resources {
		for _, dep := range r.DependsOn {
			if dep == r.Name {
				return fmt.Errorf("resource %q depends on itself: %w", r.Name, model.ErrNotValid)
			}
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("resource %q depends on unknown resource %q: %w", r.Name, dep, model.ErrNotValid)
			}
		}
	}

	_, err := d.Ordered()
	return err
}

// Ordered returns the resources sorted so every resource comes after its
// dependencies, ties keep the declaration order.
func (d Document) Ordered() ([]Resource, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	index := make(map[string]int, len(d.Resources))
	for i, r := range d.Resources {
		index[r.Name] = i
	}

	state := make([]int, len(d.Resources))
	ordered := make([]Resource, 0, len(d.Resources))

	var visit func(i int, path []string) error
	visit = func(i int, path []string) error {
		r := d.Resources[i]
		switch state[i] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle %s: %w", strings.Join(append(path, r.Name), " -> "), model.ErrNotValid)
		}

		state[i] = visiting
		deps := make([]int, 0, len(r.DependsOn))
		for _, dep := range r.DependsOn {
			j, ok := index[dep]
			if !ok {
				return fmt.Errorf("resource %q depends on unknown resource %q: %w", r.Name, dep, model.ErrNotValid)
			}
			deps = append(deps, j)
		}
		sort.Ints(deps)
		next := append(append([]string{}, path...), r.Name)
		for _, j := range deps {
			if err := visit(j, next); err != nil {
				return err
			}
		}
		state[i] = visited
		ordered = append(ordered, r)
		return nil
	}

	for i := range d.Resources {
		if err := visit(i, nil); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}

// Edges returns the dependency edges as `from -> to` pairs where `from`
// depends on `to`, in declaration order.
func (d Document) Edges() [][2]string {
	edges := [][2]string{}
	for _, r := range d.Resources {
		for _, dep := range r.DependsOn {
			edges = append(edges, [2]string{r.Name, dep})
		}
	}
	return edges
}
