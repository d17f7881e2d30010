// Package schema discovers the PPM backend's object types and caches their
// attribute metadata.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ahmetk3436/ppmchat/internal/ppm"
)

// DefaultTTL bounds how long discovered types and object schemas are reused.
const DefaultTTL = time.Hour

// StandardObjects are always offered, even when discovery fails.
var StandardObjects = []string{
	"projects", "ideas", "tasks", "resources",
	"timesheets", "programs", "roles", "investments",
}

// Attribute describes one field of an object type.
type Attribute struct {
	APIName     string `json:"apiName"`
	DisplayName string `json:"displayName"`
	DataType    string `json:"dataType"`
	IsRequired  bool   `json:"isRequired"`
	IsReadOnly  bool   `json:"isReadOnly"`
	IsLookup    bool   `json:"isLookup"`
	LookupType  string `json:"lookupType,omitempty"`
	MaxLength   *int   `json:"maxLength,omitempty"`
	Precision   *int   `json:"precision,omitempty"`
	Scale       *int   `json:"scale,omitempty"`
}

// Entry is the cached schema of one object type. Entries are shared between
// callers and must not be modified.
type Entry struct {
	ResourceName string      `json:"resourceName"`
	Label        string      `json:"label"`
	PluralLabel  string      `json:"pluralLabel"`
	IsCustom     bool        `json:"isCustom"`
	Attributes   []Attribute `json:"attributes"`
}

// Attribute finds a field by API name or display name, case-insensitively.
func (e *Entry) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if strings.EqualFold(a.APIName, name) || strings.EqualFold(a.DisplayName, name) {
			return a, true
		}
	}
	return Attribute{}, false
}

// ObjectType is a discovered object type summary.
type ObjectType struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	PluralLabel string `json:"pluralLabel,omitempty"`
	IsCustom    bool   `json:"isCustom"`
}

type cachedEntry struct {
	entry     *Entry
	fetchedAt time.Time
}

// Cache holds discovered object types and per-type schemas. Safe for
// concurrent use.
type Cache struct {
	api ppm.API
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	types     []ObjectType
	fetchedAt time.Time
	entries   map[string]cachedEntry

	group singleflight.Group
}

func NewCache(api ppm.API, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		api:     api,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedEntry),
	}
}

// DiscoverObjectTypes returns the known object type names. The cached list is
// reused while fresh; on fetch failure the previous list, or the standard
// list, is returned instead of an error.
func (c *Cache) DiscoverObjectTypes(ctx context.Context, forceRefresh bool) []string {
	c.mu.RLock()
	if !forceRefresh && len(c.types) > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		names := typeNames(c.types)
		c.mu.RUnlock()
		return names
	}
	c.mu.RUnlock()

	v, _, _ := c.group.Do("discover", func() (any, error) {
		types, err := c.fetchObjectTypes(ctx)
		if err != nil {
			slog.Warn("Object type discovery failed, using fallback", "error", err)
			c.mu.RLock()
			defer c.mu.RUnlock()
			if len(c.types) > 0 {
				return c.types, nil
			}
			return standardTypes(), nil
		}

		c.mu.Lock()
		c.types = types
		c.fetchedAt = c.now()
		c.mu.Unlock()

		slog.Info("Object types discovered", "count", len(types))
		return types, nil
	})

	return typeNames(v.([]ObjectType))
}

func (c *Cache) fetchObjectTypes(ctx context.Context) ([]ObjectType, error) {
	var all, custom *ppm.Response

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := c.api.Get(gctx, "/describe")
		if err != nil {
			return &FetchError{Resource: "describe", Err: err}
		}
		all = resp
		return nil
	})
	g.Go(func() error {
		resp, err := c.api.Get(gctx, "/describe?isCustom=true")
		if err != nil {
			// Custom objects are optional; the full list still counts.
			slog.Debug("Custom object discovery failed", "error", err)
			return nil
		}
		custom = resp
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	var types []ObjectType
	add := func(t ObjectType) {
		if t.Name == "" {
			return
		}
		if i, ok := seen[t.Name]; ok {
			if t.IsCustom {
				types[i].IsCustom = true
			}
			return
		}
		seen[t.Name] = len(types)
		types = append(types, t)
	}

	for _, r := range all.Results {
		add(objectTypeFrom(r, false))
	}
	if custom != nil {
		for _, r := range custom.Results {
			add(objectTypeFrom(r, true))
		}
	}
	for _, t := range standardTypes() {
		add(t)
	}
	return types, nil
}

// GetSchema returns the schema of one object type, fetching it on a miss or
// when the cached copy is stale. A stale copy is served if the refresh fails.
func (c *Cache) GetSchema(ctx context.Context, objectType string) (*Entry, error) {
	c.mu.RLock()
	cached, ok := c.entries[objectType]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.fetchedAt) < c.ttl {
		return cached.entry, nil
	}

	v, err, _ := c.group.Do("schema:"+objectType, func() (any, error) {
		return c.fetchSchema(ctx, objectType)
	})
	if err != nil {
		if ok {
			slog.Warn("Schema refresh failed, serving stale copy", "object", objectType, "error", err)
			return cached.entry, nil
		}
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *Cache) fetchSchema(ctx context.Context, objectType string) (*Entry, error) {
	resp, err := c.api.Get(ctx, "/describe/"+objectType)
	if err != nil {
		return nil, &FetchError{Resource: objectType, Err: err}
	}

	entry := parseEntry(objectType, resp)
	if known, ok := c.objectType(objectType); ok {
		if entry.Label == "" {
			entry.Label = known.Label
		}
		entry.IsCustom = entry.IsCustom || known.IsCustom
	}

	c.mu.Lock()
	c.entries[objectType] = cachedEntry{entry: entry, fetchedAt: c.now()}
	c.mu.Unlock()

	slog.Debug("Schema cached", "object", objectType, "attributes", len(entry.Attributes))
	return entry, nil
}

// ObjectTypes returns discovered type summaries, or the standard list when
// discovery has not run yet.
func (c *Cache) ObjectTypes() []ObjectType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) == 0 {
		return standardTypes()
	}
	out := make([]ObjectType, len(c.types))
	copy(out, c.types)
	return out
}

// CustomObjects returns the discovered custom object types sorted by label.
func (c *Cache) CustomObjects() []ObjectType {
	var out []ObjectType
	for _, t := range c.ObjectTypes() {
		if t.IsCustom {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out
}

// IsCustom reports whether name is a discovered custom object type.
func (c *Cache) IsCustom(name string) bool {
	t, ok := c.objectType(name)
	return ok && t.IsCustom
}

// Label returns the display label of an object type, or the name itself.
func (c *Cache) Label(name string) string {
	if t, ok := c.objectType(name); ok && t.Label != "" {
		return t.Label
	}
	return name
}

func (c *Cache) objectType(name string) (ObjectType, bool) {
	for _, t := range c.ObjectTypes() {
		if t.Name == name {
			return t, true
		}
	}
	return ObjectType{}, false
}

// ResolveObjectName maps free text to a known object type name. Matching
// tries, in order: exact name, case-insensitive label, then substring
// containment. Containment ties go to the longest matching key, then to the
// alphabetically first name.
func (c *Cache) ResolveObjectName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	types := c.ObjectTypes()

	for _, t := range types {
		if t.Name == text {
			return t.Name, true
		}
	}

	lower := strings.ToLower(text)
	for _, t := range types {
		if strings.EqualFold(t.Label, text) || strings.EqualFold(t.PluralLabel, text) || strings.EqualFold(t.Name, text) {
			return t.Name, true
		}
	}

	best, bestScore := "", 0
	consider := func(name string, score int) {
		if score > bestScore || (score == bestScore && name < best) {
			best, bestScore = name, score
		}
	}
	for _, t := range types {
		for _, key := range []string{t.Name, t.Label, t.PluralLabel} {
			k := strings.ToLower(key)
			if len(k) < 3 {
				continue
			}
			switch {
			case strings.Contains(lower, k):
				consider(t.Name, len(k))
			case len(lower) >= 3 && strings.Contains(k, lower):
				consider(t.Name, len(lower))
			}
		}
	}
	return best, best != ""
}

func typeNames(types []ObjectType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names
}

func standardTypes() []ObjectType {
	out := make([]ObjectType, len(StandardObjects))
	for i, name := range StandardObjects {
		out[i] = ObjectType{Name: name, Label: titleCase(strings.TrimSuffix(name, "s"))}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func objectTypeFrom(r map[string]any, custom bool) ObjectType {
	t := ObjectType{
		Name:        firstString(r, "resourceName", "name", "objectCode", "apiAlias"),
		Label:       firstString(r, "label", "displayName", "name"),
		PluralLabel: firstString(r, "pluralLabel", "displayNamePlural"),
		IsCustom:    custom || boolValue(r["isCustom"]),
	}
	if t.Label == "" {
		t.Label = t.Name
	}
	return t
}

// FetchError means the backend's describe endpoint could not be read.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch schema for %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
