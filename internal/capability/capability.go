// Package capability tracks what the connected PPM backend and the current
// caller are able to do. Help text and tool listings are derived from it.
package capability

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

// Flags is a snapshot of backend capabilities.
type Flags struct {
	Read             bool            `json:"read"`
	Write            bool            `json:"write"`
	Delete           bool            `json:"delete"`
	StandardObjects  map[string]bool `json:"standardObjects"`
	HasCustomObjects bool            `json:"hasCustomObjects"`
	CheckedAt        time.Time       `json:"checkedAt"`
}

// HasObject reports whether a standard object type answered the last probe.
func (f Flags) HasObject(name string) bool {
	return f.StandardObjects[name]
}

// AvailableObjects lists the standard objects that answered, sorted.
func (f Flags) AvailableObjects() []string {
	out := make([]string, 0, len(f.StandardObjects))
	for name, ok := range f.StandardObjects {
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Provider exposes the latest capability flags.
type Provider interface {
	Flags() Flags
}

// Monitor probes the backend on a fixed interval and caches the result.
type Monitor struct {
	api      ppm.API
	schemas  *schema.Cache
	readOnly bool
	interval time.Duration

	mu    sync.RWMutex
	flags Flags

	stop chan struct{}
	done chan struct{}
}

func NewMonitor(api ppm.API, schemas *schema.Cache, readOnly bool, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Monitor{
		api:      api,
		schemas:  schemas,
		readOnly: readOnly,
		interval: interval,
		flags:    optimistic(readOnly),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// optimistic is what callers see before the first probe completes.
func optimistic(readOnly bool) Flags {
	objs := make(map[string]bool, len(schema.StandardObjects))
	for _, name := range schema.StandardObjects {
		objs[name] = true
	}
	return Flags{
		Read:            true,
		Write:           !readOnly,
		Delete:          !readOnly,
		StandardObjects: objs,
	}
}

func (m *Monitor) Flags() Flags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := m.flags
	f.StandardObjects = maps.Clone(m.flags.StandardObjects)
	return f
}

func (m *Monitor) Start() {
	go m.loop()
	slog.Info("Capability monitor started", "interval", m.interval.String())
}

func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
	slog.Info("Capability monitor stopped")
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(context.Background())

	for {
		select {
		case <-ticker.C:
			m.Refresh(context.Background())
		case <-m.stop:
			return
		}
	}
}

// Refresh probes each standard object with a one-record read and rediscovers
// custom objects.
func (m *Monitor) Refresh(ctx context.Context) Flags {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var mu sync.Mutex
	objs := make(map[string]bool, len(schema.StandardObjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range schema.StandardObjects {
		g.Go(func() error {
			_, err := m.api.Get(gctx, ppm.Endpoint("/"+name, map[string]string{"limit": "1"}))
			mu.Lock()
			objs[name] = err == nil
			mu.Unlock()
			if err != nil {
				slog.Debug("Capability probe failed", "object", name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.schemas.DiscoverObjectTypes(ctx, true)

	read := false
	for _, ok := range objs {
		read = read || ok
	}

	f := Flags{
		Read:             read,
		Write:            read && !m.readOnly,
		Delete:           read && !m.readOnly,
		StandardObjects:  objs,
		HasCustomObjects: len(m.schemas.CustomObjects()) > 0,
		CheckedAt:        time.Now(),
	}

	m.mu.Lock()
	m.flags = f
	m.mu.Unlock()

	slog.Info("Capabilities refreshed",
		"read", f.Read,
		"write", f.Write,
		"objects", strings.Join(f.AvailableObjects(), ","),
		"custom_objects", f.HasCustomObjects,
	)
	return f
}

// Static is a fixed Provider, mostly for tests and the CLI.
type Static Flags

func (s Static) Flags() Flags { return Flags(s) }
