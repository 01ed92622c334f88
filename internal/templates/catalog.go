package templates

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tikzflow/internal/diagram"
	"tikzflow/internal/fileutil"
	"tikzflow/internal/logging"
	"tikzflow/internal/services"
)

//go:embed default_templates.json
var defaultTemplatesJSON []byte

//go:embed template_schema.json
var templateSchemaJSON []byte

// Template is a ready-made TikZ diagram offered to clients and used by the
// offline converter.
type Template struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	DiagramType  diagram.Type `json:"diagram_type"`
	TikZCode     string       `json:"tikz_code"`
	PreviewImage string       `json:"preview_image,omitempty"`
}

// Catalog holds the current template set. It is safe for concurrent use and
// may be reloaded while readers are active.
type Catalog struct {
	mu        sync.RWMutex
	templates []Template
	byID      map[string]Template
	path      string
	logger    *slog.Logger
}

// Default returns a catalog holding only the built-in templates.
func Default() *Catalog {
	c := &Catalog{logger: logging.NewNop()}
	list, err := parse(defaultTemplatesJSON)
	if err != nil {
		panic(fmt.Sprintf("built-in templates invalid: %v", err))
	}
	c.set(list)
	return c
}

// Load reads the catalog from path, seeding it with the built-in templates
// when the file does not exist. An empty path uses the built-ins only.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		c := Default()
		c.logger = logger
		return c, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := fileutil.WriteFileAtomic(path, defaultTemplatesJSON, 0o644); err != nil {
			return nil, fmt.Errorf("seed template catalog: %w", err)
		}
		logger.Info("template catalog seeded", logging.String("template_file", path))
	}
	c := &Catalog{path: path, logger: logger}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the backing file, or "" for the built-in catalog.
func (c *Catalog) Path() string { return c.path }

// Reload re-reads the backing file. On error the previous templates stay in
// place.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read template catalog: %w", err)
	}
	list, err := parse(data)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "templates", "load", c.path, err)
	}
	c.set(list)
	c.logger.Debug("template catalog loaded", logging.Int("template_count", len(list)))
	return nil
}

func (c *Catalog) set(list []Template) {
	byID := make(map[string]Template, len(list))
	for _, t := range list {
		byID[t.ID] = t
	}
	c.mu.Lock()
	c.templates = list
	c.byID = byID
	c.mu.Unlock()
}

// List returns every template in catalog order.
func (c *Catalog) List() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Get returns the template with id.
func (c *Catalog) Get(id string) (Template, error) {
	c.mu.RLock()
	t, ok := c.byID[strings.TrimSpace(id)]
	c.mu.RUnlock()
	if !ok {
		return Template{}, services.Wrap(services.ErrNotFound, "templates", "get", "Template not found", nil)
	}
	return t, nil
}

// ByType returns the templates for one diagram type.
func (c *Catalog) ByType(t diagram.Type) []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Template
	for _, tpl := range c.templates {
		if tpl.DiagramType == t {
			out = append(out, tpl)
		}
	}
	return out
}

// First returns the first template for t, if any.
func (c *Catalog) First(t diagram.Type) (Template, bool) {
	list := c.ByType(t)
	if len(list) == 0 {
		return Template{}, false
	}
	return list[0], true
}

// Counts reports how many templates exist per diagram type.
func (c *Catalog) Counts() map[diagram.Type]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[diagram.Type]int)
	for _, t := range c.templates {
		counts[t.DiagramType]++
	}
	return counts
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("templates.json", bytes.NewReader(templateSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("templates.json")
	})
	return schema, schemaErr
}

func parse(data []byte) ([]Template, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	if err := s.Validate(raw); err != nil {
		return nil, fmt.Errorf("templates do not match schema: %w", err)
	}
	var list []Template
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	seen := make(map[string]struct{}, len(list))
	for _, t := range list {
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if err := diagram.ValidateTikZ(t.TikZCode); err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
	}
	return list, nil
}

// SortedTypes returns the diagram types present in counts in display order.
func SortedTypes(counts map[diagram.Type]int) []diagram.Type {
	out := make([]diagram.Type, 0, len(counts))
	for t := range counts {
		out = append(out, t)
	}
	order := make(map[diagram.Type]int)
	for i, t := range diagram.Types() {
		order[t] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
