package internal

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/vaultkeep/internal/testutil"
	pkgconfig "github.com/starford/vaultkeep/pkg/config"
)

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("AUTH_MODE", "")
	t.Setenv("VAULT_PATH", "/srv/vault")
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join("..", "config", "config.yaml"), cfg); err != nil {
		t.Fatalf("load sample config: %v", err)
	}
	if cfg.Vault.Path != "/srv/vault" || cfg.Auth.Mode != AuthModeDisabled {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Templates) != 1 || cfg.Templates[0].ID != "meeting" || len(cfg.EngineConfig().Templates) != 1 {
		t.Errorf("templates = %+v", cfg.Templates)
	}
}

func TestOpenEngineWithIndex(t *testing.T) {
	dir := testutil.Vault(t, map[string]string{
		"a.md": "---\ntags: [alpha]\n---\n# Alpha\nfind the needle here",
		"b.md": "[[a]]",
	})
	cfg := NewDefaultConfig()
	cfg.Vault.Path = dir
	cfg.Vault.Watch = false
	cfg.Index.Enabled = true
	cfg.Index.Path = filepath.Join(t.TempDir(), "index.db")

	app := newApplication(io.Discard, []Option{WithConfig(cfg), WithRegistry(prometheus.NewRegistry())})
	eng, err := app.openEngine(context.Background(), app.logger())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	defer eng.Close()

	if !eng.Ready() {
		t.Fatal("engine should be ready after open")
	}
	hits, err := eng.Search(context.Background(), "needle", 0)
	if err != nil || len(hits) != 1 || hits[0].Path != "a.md" {
		t.Errorf("search = %+v, %v", hits, err)
	}
	tagged, err := eng.TaggedWith(context.Background(), "#alpha")
	if err != nil || len(tagged) != 1 {
		t.Errorf("tagged = %v, %v", tagged, err)
	}

	families, err := app.registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "vaultkeep_") {
			found = true
		}
	}
	if !found {
		t.Error("engine metrics not registered")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("Run without config should fail")
	}
	if err := RunMCP(context.Background()); err == nil {
		t.Error("RunMCP without config should fail")
	}
}
