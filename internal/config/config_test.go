package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindEnvLocal_InParentDir(t *testing.T) {
	// Create temp directory structure: parent/.env.local, parent/child/
	tmpDir := t.TempDir()
	childDir := filepath.Join(tmpDir, "child")
	if err := os.Mkdir(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(tmpDir, ".env.local")
	if err := os.WriteFile(envPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(childDir)

	result := findEnvLocal()
	if result == "" {
		t.Fatal("expected to find .env.local in parent directory")
	}
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(envPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected %s, got %s", expectedResolved, resultResolved)
	}
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	tmpDir := t.TempDir()
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}
	parentEnvPath := filepath.Join(parentDir, ".env.local")
	if err := os.WriteFile(parentEnvPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(childDir)

	result := findEnvLocal()
	expectedResolved, _ := filepath.EvalSymlinks(parentEnvPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected closest .env.local (%s), got %s", expectedResolved, resultResolved)
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("RECMERGE_CONFIG", filepath.Join(tmpDir, "missing.yaml"))
	t.Setenv("RECMERGE_DB_PATH", filepath.Join(tmpDir, "crm.db"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("expected batch size 100, got %d", cfg.BatchSize)
	}
	if cfg.YieldThreshold != 500 {
		t.Errorf("expected yield threshold 500, got %d", cfg.YieldThreshold)
	}
	if !cfg.SoftDelete {
		t.Error("expected soft delete enabled by default")
	}
	contact, err := cfg.Entity("contact")
	if err != nil {
		t.Fatalf("Entity(contact) failed: %v", err)
	}
	if contact.Collection != "contacts" || contact.ProfileCollection != "contactProfiles" {
		t.Errorf("unexpected contact entity: %+v", contact)
	}
	if _, err := cfg.Entity("lender"); err == nil {
		t.Error("expected error for unknown entity kind")
	}
}

func TestLoad_YAMLThenEnvPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	yamlPath := filepath.Join(tmpDir, "config.yaml")
	yamlBody := `
db_path: /from/yaml.db
batch_size: 25
soft_delete: false
output: json
singletons:
  - collection: reminders
    type_field: kind
    owner_field: contactId
    separator: "|"
foreign_keys:
  deals: [buyerContactId, sellerContactId]
`
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECMERGE_CONFIG", yamlPath)
	t.Setenv("RECMERGE_DB_PATH", filepath.Join(tmpDir, "env.db"))
	t.Setenv("RECMERGE_BATCH_SIZE", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != filepath.Join(tmpDir, "env.db") {
		t.Errorf("env should override yaml db_path, got %s", cfg.DBPath)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("env should override yaml batch_size, got %d", cfg.BatchSize)
	}
	if cfg.SoftDelete {
		t.Error("yaml soft_delete: false should apply")
	}
	if cfg.Output != "json" {
		t.Errorf("expected output json, got %s", cfg.Output)
	}
	if len(cfg.Singletons) != 1 || cfg.Singletons[0].Collection != "reminders" || cfg.Singletons[0].Separator != "|" {
		t.Errorf("unexpected singletons: %+v", cfg.Singletons)
	}
	if got := cfg.ForeignKeys["deals"]; len(got) != 2 {
		t.Errorf("unexpected foreign keys for deals: %v", got)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("RECMERGE_CONFIG", filepath.Join(tmpDir, "missing.yaml"))
	t.Setenv("RECMERGE_DB_PATH", filepath.Join(tmpDir, "crm.db"))
	t.Setenv("RECMERGE_BATCH_SIZE", "lots")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric RECMERGE_BATCH_SIZE")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero batch size")
	}

	cfg = Default()
	cfg.Entities = append(cfg.Entities, EntityConfig{Kind: "contact", Collection: "other", ForeignKeys: []string{"x"}})
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate entity kind")
	}

	cfg = Default()
	cfg.Output = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown output format")
	}
}
