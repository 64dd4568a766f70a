package registry_test

import (
	"errors"
	"flag"
	"strings"
	"testing"

	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/memstore"
	"xdao.co/rangeproof/storage/registry"
)

var testLabel string

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "test-mem",
		Description: "in-memory store for registry tests",
		Usage:       registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&testLabel, "test-mem-label", "", "label")
		},
		Open: func() (storage.BlockStore, func() error, error) {
			if testLabel == "" {
				return nil, nil, errMissingLabel
			}
			return memstore.New(), nil, nil
		},
	})
}

var errMissingLabel = errors.New("missing --test-mem-label")

func TestRegister_RejectsDuplicatesAndIncomplete(t *testing.T) {
	dup := registry.Backend{
		Name:          "test-mem",
		Usage:         registry.UsageCLI,
		RegisterFlags: func(*flag.FlagSet) {},
		Open:          func() (storage.BlockStore, func() error, error) { return nil, nil, nil },
	}
	if err := registry.Register(dup); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := registry.Register(registry.Backend{Name: "incomplete"}); err == nil {
		t.Fatalf("expected error for backend without hooks")
	}
}

func TestUsageFiltering(t *testing.T) {
	if got := strings.Join(registry.Names(registry.UsageDaemon), ","); !strings.Contains(got, "test-mem") {
		t.Fatalf("daemon names missing test-mem: %s", got)
	}
	for _, n := range registry.Names(registry.UsageCLI) {
		if n == "test-mem" {
			t.Fatalf("test-mem must not be offered to CLIs")
		}
	}
	if _, _, err := registry.Open("test-mem", registry.UsageCLI); err == nil {
		t.Fatalf("expected usage error")
	}
	if _, _, err := registry.Open("nope", registry.UsageDaemon); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func TestOpenWithConfig(t *testing.T) {
	if _, _, err := registry.OpenWithConfig("test-mem", registry.UsageDaemon, nil); err == nil {
		t.Fatalf("expected error without label")
	}
	s, _, err := registry.OpenWithConfig("test-mem", registry.UsageDaemon, map[string]string{"test-mem-label": "x"})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if s == nil {
		t.Fatalf("nil store")
	}
	if _, _, err := registry.OpenWithConfig("test-mem", registry.UsageDaemon, map[string]string{"other": "x"}); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestRegisterFlags(t *testing.T) {
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	registry.RegisterFlags(fs, registry.UsageDaemon)
	if fs.Lookup("test-mem-label") == nil {
		t.Fatalf("flag not registered")
	}
}
