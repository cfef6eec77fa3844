package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/vaultkeep/internal/templates"
	"github.com/starford/vaultkeep/internal/validation"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	ec := cfg.EngineConfig()
	if ec.Root != "./vault" || ec.CacheTTL != time.Hour {
		t.Errorf("engine config = %+v", ec)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("empty token: err = %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestVaultConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*VaultConfig)
	}{
		{"empty path", func(c *VaultConfig) { c.Path = "" }},
		{"negative ttl", func(c *VaultConfig) { c.CacheTTL = -time.Second }},
		{"negative max size", func(c *VaultConfig) { c.MaxFileSize = -1 }},
		{"undotted extension", func(c *VaultConfig) { c.Extensions = []string{"md"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(&cfg.Vault)
			if err := cfg.Validate(); err == nil || !strings.HasPrefix(err.Error(), "vault:") {
				t.Errorf("err = %v, want vault error", err)
			}
		})
	}
}

func TestIndexConfig_PathRequiredWhenEnabled(t *testing.T) {
	cfg := IndexConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled index without path should fail")
	}
	cfg.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled index: %v", err)
	}
}

func TestValidationConfig_Validators(t *testing.T) {
	cfg := ValidationConfig{}
	vs := cfg.Validators()
	if len(vs) != 1 || vs[0].Name() != "content" {
		t.Errorf("default validators = %v", vs)
	}

	cfg = ValidationConfig{RequiredFrontmatter: []string{"title"}, MinLength: 10}
	vs = cfg.Validators()
	if len(vs) != 2 {
		t.Fatalf("validators = %v", vs)
	}
	fm, ok := vs[0].(validation.FrontmatterValidator)
	if !ok || fm.Required[0] != "title" {
		t.Errorf("first validator = %#v", vs[0])
	}

	cfg.MaxLength = 5
	if err := cfg.Validate(); err == nil {
		t.Error("max below min should fail")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestConfig_InvalidTemplate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Templates = []templates.Template{{ID: "meeting", Name: "Meeting", Fields: []templates.Field{{Name: "when", Type: "time"}}}}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "templates[0]") {
		t.Fatalf("err = %v, want templates[0] error", err)
	}
}
