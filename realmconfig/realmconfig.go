// Package realmconfig loads realm definitions from a YAML file and keeps them
// current as the file changes.
//
// The file lists realms by name:
//
//	realms:
//	  - name: com.example.app
//	    max_sessions: 100
//	    disclose_publisher: true
//	    meta_events: true
package realmconfig

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/wamp-router-go/router"
	"github.com/ggoodman/wamp-router-go/wamp"
	"gopkg.in/yaml.v3"
)

type file struct {
	Realms []router.RealmSpec `yaml:"realms"`
}

// Catalog is a router.RealmCatalog backed by a YAML file. Routers created
// before a reload keep the spec they were created with.
type Catalog struct {
	path string
	log  *slog.Logger

	mu     sync.RWMutex
	realms map[string]router.RealmSpec
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used to report reloads.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// Load reads the catalog at path.
func Load(path string, opts ...Option) (*Catalog, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	c := &Catalog{path: abs, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (map[string]router.RealmSpec, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode realm catalog: %w", err)
	}
	realms := make(map[string]router.RealmSpec, len(f.Realms))
	for i, spec := range f.Realms {
		if err := wamp.URI(spec.Name).Validate(false); err != nil {
			return nil, fmt.Errorf("realm %d: invalid name: %w", i, err)
		}
		if spec.MaxSessions < 0 {
			return nil, fmt.Errorf("realm %q: max_sessions must not be negative", spec.Name)
		}
		if _, dup := realms[spec.Name]; dup {
			return nil, fmt.Errorf("realm %q: defined twice", spec.Name)
		}
		realms[spec.Name] = spec
	}
	return realms, nil
}

// Reload re-reads the file. On error the previous catalog stays in effect.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read realm catalog: %w", err)
	}
	realms, err := Parse(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.realms = realms
	c.mu.Unlock()
	return nil
}

// LookupRealm implements router.RealmCatalog.
func (c *Catalog) LookupRealm(name string) (router.RealmSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.realms[name]
	return spec, ok
}

// Realms lists the configured realm names, sorted.
func (c *Catalog) Realms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.realms))
	for name := range c.realms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch reloads the catalog whenever its file is written or replaced, until
// ctx ends. The parent directory is watched so that editors which replace the
// file by renaming are picked up.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch realm catalog: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(c.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != c.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if err := c.Reload(); err != nil {
				c.log.Warn("realmconfig.reload_failed", slog.String("path", c.path), slog.String("err", err.Error()))
				continue
			}
			c.log.Info("realmconfig.reloaded", slog.String("path", c.path), slog.Int("realms", len(c.Realms())))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("realmconfig.watch_error", slog.String("err", err.Error()))
		}
	}
}

var _ router.RealmCatalog = (*Catalog)(nil)
