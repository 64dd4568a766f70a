package storeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/registry"
)

// Config describes how to open one or more block store backends via registry.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends (see storage.ReplicatingStore)
//
// Cache, when set, is opened as a read-through cache in front of the
// resulting store (see storage.CachedStore).
//
// Example (YAML; JSON uses the same keys):
//
//	write_policy: first
//	cache:
//	  name: badger
//	  config: {badger-dir: /var/cache/rangeproof}
//	backends:
//	  - name: kubo
//	    config: {kubo-api: /ip4/127.0.0.1/tcp/5001, kubo-offline: "true"}
//	  - name: localfs
//	    config: {localfs-dir: /srv/blocks}
//
// Config values are backend-specific and mirror the backend's flag names.
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty" yaml:"write_policy,omitempty"`
	Cache       *BackendConfig  `json:"cache,omitempty" yaml:"cache,omitempty"`
	Backends    []BackendConfig `json:"backends" yaml:"backends"`
}

type BackendConfig struct {
	// Name is the registry backend name to open (e.g. "grpc", "localfs", "kubo").
	Name string `json:"name" yaml:"name"`
	// ID is an optional stable alias used in logs and write reports.
	// If empty, Name is used.
	ID     string            `json:"id,omitempty" yaml:"id,omitempty"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// LoadFile reads a config file. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("storeconfig: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("storeconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("storeconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("storeconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	if c.Cache != nil && c.Cache.Name == "" {
		return errors.New("storeconfig: cache backend name is required")
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens a BlockStore per config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus used for writes when WritePolicy=="first").
func (c Config) Open(usage registry.Usage, preferredBackend string) (storage.BlockStore, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("storeconfig: preferred backend %q not found in config", preferredBackend)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	var closers []func() error
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	open := func(b BackendConfig) (storage.BlockStore, error) {
		s, closeFn, err := registry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			return nil, fmt.Errorf("storeconfig: backend %q: %w", b.id(), err)
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		return s, nil
	}

	named := make([]storage.NamedStore, 0, len(ordered))
	for _, b := range ordered {
		s, err := open(b)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		named = append(named, storage.NamedStore{Name: b.id(), Store: s})
	}

	var out storage.BlockStore
	switch {
	case len(named) == 1:
		out = named[0].Store
	case c.WritePolicy == "all":
		out = storage.ReplicatingStore{Backends: named}
	default:
		stores := make([]storage.BlockStore, 0, len(named))
		for _, n := range named {
			stores = append(stores, n.Store)
		}
		out = storage.MultiStore{Stores: stores}
	}

	if c.Cache != nil {
		cache, err := open(*c.Cache)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		out = storage.CachedStore{Cache: cache, Origin: out}
	}
	return out, closeAll, nil
}
