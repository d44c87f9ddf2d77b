package terminology

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/fhirschema/schema"
)

// Store is an in-memory terminology service. It holds ValueSets and
// CodeSystems and validates codes against them. Filters of composed
// ValueSets are expanded lazily on first use.
type Store struct {
	mu          sync.RWMutex
	valueSets   map[string]*valueSet
	codeSystems map[string]*codeSystem
}

type valueSet struct {
	url      string
	codes    map[string]map[string]concept // system -> code -> concept
	filters  []filter
	expanded bool
}

type codeSystem struct {
	url      string
	codes    map[string]concept
	children map[string][]string
}

type concept struct {
	system  string
	code    string
	display string
}

type filter struct {
	system   string
	property string
	op       string
	value    string
}

// includeAll marks a compose include without concepts or filters.
const includeAll = "include-all"

// NewStore creates a store preloaded with the common code systems.
func NewStore() *Store {
	s := &Store{
		valueSets:   make(map[string]*valueSet),
		codeSystems: make(map[string]*codeSystem),
	}
	s.loadCommon()
	return s
}

// LoadValueSet adds an R4 ValueSet. An expansion is used as is; otherwise
// the compose includes are recorded and expanded on first use.
func (s *Store) LoadValueSet(vs *r4.ValueSet) error {
	if vs == nil || vs.Url == nil {
		return fmt.Errorf("terminology: value set has no url")
	}

	data := &valueSet{
		url:   Canonical(*vs.Url),
		codes: make(map[string]map[string]concept),
	}
	switch {
	case vs.Expansion != nil:
		for i := range vs.Expansion.Contains {
			data.addContains(&vs.Expansion.Contains[i])
		}
		data.expanded = true
	case vs.Compose != nil:
		data.addCompose(vs.Compose)
	}

	s.mu.Lock()
	s.valueSets[data.url] = data
	s.mu.Unlock()
	return nil
}

// LoadCodeSystem adds an R4 CodeSystem, including its concept hierarchy.
func (s *Store) LoadCodeSystem(cs *r4.CodeSystem) error {
	if cs == nil || cs.Url == nil {
		return fmt.Errorf("terminology: code system has no url")
	}

	data := &codeSystem{
		url:      Canonical(*cs.Url),
		codes:    make(map[string]concept),
		children: make(map[string][]string),
	}
	data.addConcepts(cs.Concept, "")

	s.mu.Lock()
	s.codeSystems[data.url] = data
	s.mu.Unlock()
	return nil
}

// AddValueSet registers a ValueSet enumerating codes of one system.
// codes maps code to display.
func (s *Store) AddValueSet(url, system string, codes map[string]string) {
	data := &valueSet{
		url:      Canonical(url),
		codes:    map[string]map[string]concept{system: {}},
		expanded: true,
	}
	for code, display := range codes {
		data.codes[system][code] = concept{system: system, code: code, display: display}
	}
	s.mu.Lock()
	s.valueSets[data.url] = data
	s.mu.Unlock()
}

// AddCodeSystem registers a flat CodeSystem. codes maps code to display.
func (s *Store) AddCodeSystem(url string, codes map[string]string) {
	data := &codeSystem{
		url:      url,
		codes:    make(map[string]concept, len(codes)),
		children: make(map[string][]string),
	}
	for code, display := range codes {
		data.codes[code] = concept{system: url, code: code, display: display}
	}
	s.mu.Lock()
	s.codeSystems[url] = data
	s.mu.Unlock()
}

// Catalog lists schemas by type name. *registry.Registry implements it.
type Catalog interface {
	Types() []string
	Lookup(name string) (*schema.Schema, bool)
}

// LoadBindings registers a ValueSet for every binding that enumerates its
// codes in the catalog's schemas. It returns the number of value sets added.
func (s *Store) LoadBindings(c Catalog) int {
	added := make(map[string]bool)
	for _, name := range c.Types() {
		sch, ok := c.Lookup(name)
		if !ok {
			continue
		}
		for _, f := range sch.Fields {
			b := f.Binding
			if !b.HasCodes() || b.ValueSet == "" || added[Canonical(b.ValueSet)] {
				continue
			}
			url := Canonical(b.ValueSet)
			data := &valueSet{url: url, codes: make(map[string]map[string]concept), expanded: true}
			for system, codes := range b.Codes {
				data.codes[system] = make(map[string]concept, len(codes))
				for _, code := range codes {
					data.codes[system][code] = concept{system: system, code: code}
				}
			}
			s.mu.Lock()
			if _, exists := s.valueSets[url]; !exists {
				s.valueSets[url] = data
				added[url] = true
			}
			s.mu.Unlock()
		}
	}
	return len(added)
}

// CheckCode reports whether code (of system, or of any system when system
// is empty) belongs to the ValueSet. known is false when the ValueSet is
// not loaded. It is the synchronous lookup used during decoding.
func (s *Store) CheckCode(valueSetURL, system, code string) (valid, known bool) {
	url := Canonical(valueSetURL)
	if err := s.expand(url); err != nil {
		return false, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.valueSets[url].lookup(system, code)
	return ok, true
}

// ValidateCode validates code against a ValueSet or, when valueSet is
// empty, against the CodeSystem named by system.
func (s *Store) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if code == "" {
		return &Result{Message: "code is empty"}, nil
	}

	if valueSetURL != "" {
		url := Canonical(valueSetURL)
		if err := s.expand(url); err != nil {
			return nil, err
		}
		s.mu.RLock()
		c, ok := s.valueSets[url].lookup(system, code)
		s.mu.RUnlock()
		if ok {
			return &Result{Valid: true, System: c.system, Code: code, Display: c.display}, nil
		}
		return &Result{
			System:  system,
			Code:    code,
			Message: fmt.Sprintf("code '%s' not found in ValueSet '%s'", code, url),
		}, nil
	}

	if system == "" {
		return &Result{Code: code, Message: "no system or value set given"}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.codeSystems[system]
	if !ok {
		return nil, fmt.Errorf("%w: code system %s", ErrNotFound, system)
	}
	if c, ok := cs.codes[code]; ok {
		return &Result{Valid: true, System: system, Code: code, Display: c.display}, nil
	}
	return &Result{
		System:  system,
		Code:    code,
		Message: fmt.Sprintf("code '%s' not found in CodeSystem '%s'", code, system),
	}, nil
}

// Expand returns the codes of a ValueSet sorted by system and code.
func (s *Store) Expand(ctx context.Context, valueSetURL string) (*Expansion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := Canonical(valueSetURL)
	if err := s.expand(url); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	exp := &Expansion{URL: url}
	for _, codes := range s.valueSets[url].codes {
		for _, c := range codes {
			exp.Contains = append(exp.Contains, Concept{System: c.system, Code: c.code, Display: c.display})
		}
	}
	sort.Slice(exp.Contains, func(i, j int) bool {
		a, b := exp.Contains[i], exp.Contains[j]
		if a.System != b.System {
			return a.System < b.System
		}
		return a.Code < b.Code
	})
	exp.Total = len(exp.Contains)
	return exp, nil
}

// CountValueSets returns the number of loaded ValueSets.
func (s *Store) CountValueSets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.valueSets)
}

// CountCodeSystems returns the number of loaded CodeSystems.
func (s *Store) CountCodeSystems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codeSystems)
}

// expand resolves the pending filters of a ValueSet once.
func (s *Store) expand(url string) error {
	s.mu.RLock()
	vs, ok := s.valueSets[url]
	if ok && (vs.expanded || len(vs.filters) == 0) {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: value set %s", ErrNotFound, url)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if vs.expanded {
		return nil
	}
	for _, f := range vs.filters {
		cs, ok := s.codeSystems[f.system]
		if !ok {
			continue
		}
		if vs.codes[f.system] == nil {
			vs.codes[f.system] = make(map[string]concept)
		}
		for _, code := range cs.match(f) {
			vs.codes[f.system][code] = cs.codes[code]
		}
	}
	vs.expanded = true
	return nil
}

func (vs *valueSet) lookup(system, code string) (concept, bool) {
	if system != "" {
		c, ok := vs.codes[system][code]
		return c, ok
	}
	for _, codes := range vs.codes {
		if c, ok := codes[code]; ok {
			return c, true
		}
	}
	return concept{}, false
}

func (vs *valueSet) add(system, code, display string) {
	if vs.codes[system] == nil {
		vs.codes[system] = make(map[string]concept)
	}
	vs.codes[system][code] = concept{system: system, code: code, display: display}
}

func (vs *valueSet) addContains(c *r4.ValueSetExpansionContains) {
	if c.System != nil && c.Code != nil {
		vs.add(*c.System, *c.Code, deref(c.Display))
	}
	for i := range c.Contains {
		vs.addContains(&c.Contains[i])
	}
}

func (vs *valueSet) addCompose(compose *r4.ValueSetCompose) {
	for i := range compose.Include {
		inc := &compose.Include[i]
		if inc.System == nil {
			continue
		}
		system := *inc.System
		for j := range inc.Concept {
			if code := inc.Concept[j].Code; code != nil {
				vs.add(system, *code, deref(inc.Concept[j].Display))
			}
		}
		for _, f := range inc.Filter {
			if f.Property == nil || f.Op == nil || f.Value == nil {
				continue
			}
			vs.filters = append(vs.filters, filter{
				system:   system,
				property: *f.Property,
				op:       string(*f.Op),
				value:    *f.Value,
			})
		}
		if len(inc.Concept) == 0 && len(inc.Filter) == 0 {
			vs.filters = append(vs.filters, filter{system: system, op: includeAll})
		}
	}
}

// match returns the codes selected by a compose filter.
func (cs *codeSystem) match(f filter) []string {
	var out []string
	switch {
	case f.op == includeAll:
		for code := range cs.codes {
			out = append(out, code)
		}
	case f.property == "concept" && (f.op == "is-a" || f.op == "descendent-of"):
		out = cs.descendants(f.value, f.op == "is-a")
	case f.property == "code" && f.op == "regex":
		re, err := regexp.Compile(f.value)
		if err != nil {
			return nil
		}
		for code := range cs.codes {
			if re.MatchString(code) {
				out = append(out, code)
			}
		}
	case f.property == "code" && f.op == "=":
		if _, ok := cs.codes[f.value]; ok {
			out = append(out, f.value)
		}
	}
	return out
}

// descendants walks the hierarchy below start. Abstract codes (leading
// underscore) are skipped.
func (cs *codeSystem) descendants(start string, includeSelf bool) []string {
	var out []string
	visited := make(map[string]bool)
	var walk func(code string)
	walk = func(code string) {
		if visited[code] {
			return
		}
		visited[code] = true
		if (includeSelf || code != start) && code != "" && code[0] != '_' {
			if _, ok := cs.codes[code]; ok {
				out = append(out, code)
			}
		}
		for _, child := range cs.children[code] {
			walk(child)
		}
	}
	walk(start)
	return out
}

// addConcepts records concepts and their parent links: nesting and
// subsumedBy properties both define the hierarchy.
func (cs *codeSystem) addConcepts(concepts []r4.CodeSystemConcept, parent string) {
	for i := range concepts {
		c := &concepts[i]
		if c.Code == nil {
			continue
		}
		code := *c.Code
		cs.codes[code] = concept{system: cs.url, code: code, display: deref(c.Display)}
		if parent != "" {
			cs.children[parent] = append(cs.children[parent], code)
		}
		for _, p := range c.Property {
			if p.Code != nil && *p.Code == "subsumedBy" && p.ValueCode != nil {
				cs.children[*p.ValueCode] = append(cs.children[*p.ValueCode], code)
			}
		}
		cs.addConcepts(c.Concept, code)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
