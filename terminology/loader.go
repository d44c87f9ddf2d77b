package terminology

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhir/r4"
)

// LoadStats counts what a load call added.
type LoadStats struct {
	ValueSets   int
	CodeSystems int
	Skipped     int
	Errors      int
}

func (s *LoadStats) add(o LoadStats) {
	s.ValueSets += o.ValueSets
	s.CodeSystems += o.CodeSystems
	s.Skipped += o.Skipped
	s.Errors += o.Errors
}

type bundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// LoadJSON loads a ValueSet, a CodeSystem or a Bundle of them. In a Bundle,
// CodeSystems are loaded before ValueSets so that filters can expand, and
// entries of other types are skipped.
func (s *Store) LoadJSON(data []byte) (LoadStats, error) {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return LoadStats{}, fmt.Errorf("terminology: invalid JSON: %w", err)
	}

	switch b.ResourceType {
	case "Bundle":
		var stats LoadStats
		for _, pass := range []string{"CodeSystem", "ValueSet"} {
			for _, e := range b.Entry {
				if e.Resource == nil {
					continue
				}
				var probe struct {
					ResourceType string `json:"resourceType"`
				}
				if err := json.Unmarshal(e.Resource, &probe); err != nil {
					stats.Errors++
					continue
				}
				if probe.ResourceType != pass {
					if pass == "ValueSet" && probe.ResourceType != "CodeSystem" {
						stats.Skipped++
					}
					continue
				}
				one, err := s.loadResource(pass, e.Resource)
				if err != nil {
					stats.Errors++
					continue
				}
				stats.add(one)
			}
		}
		return stats, nil
	case "ValueSet", "CodeSystem":
		return s.loadResource(b.ResourceType, data)
	default:
		return LoadStats{}, fmt.Errorf("terminology: unsupported resourceType %q", b.ResourceType)
	}
}

func (s *Store) loadResource(resourceType string, data []byte) (LoadStats, error) {
	switch resourceType {
	case "CodeSystem":
		var cs r4.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return LoadStats{}, fmt.Errorf("terminology: parse CodeSystem: %w", err)
		}
		if err := s.LoadCodeSystem(&cs); err != nil {
			return LoadStats{}, err
		}
		return LoadStats{CodeSystems: 1}, nil
	default:
		var vs r4.ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return LoadStats{}, fmt.Errorf("terminology: parse ValueSet: %w", err)
		}
		if err := s.LoadValueSet(&vs); err != nil {
			return LoadStats{}, err
		}
		return LoadStats{ValueSets: 1}, nil
	}
}

// LoadFS loads every *.json file under dir of fsys. Files are read in
// name order; a file that fails to load is counted in Errors.
func (s *Store) LoadFS(fsys fs.FS, dir string) (LoadStats, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return LoadStats{}, fmt.Errorf("terminology: read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var stats LoadStats
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return stats, fmt.Errorf("terminology: read %s: %w", name, err)
		}
		one, err := s.LoadJSON(data)
		if err != nil {
			stats.Errors++
			continue
		}
		stats.add(one)
	}
	return stats, nil
}
