package config

import (
	"os"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.LastStage() != 11 {
		t.Fatalf("expected 11 stages, got %d", cfg.LastStage())
	}
	if got := cfg.MasterEmail("NDS", 2); got != "priya.sharma@godeepak.com" {
		t.Fatalf("unexpected stage 2 master %q", got)
	}
	if cfg.MasterEmail("HSD1", 2) != "" {
		t.Fatalf("expected no master for HSD1")
	}
	if !cfg.IsLeadStage(5) || cfg.IsLeadStage(7) {
		t.Fatalf("unexpected lead stages %v", cfg.Workflow.LeadStages)
	}
	if cfg.RoleName("FA") != "F&A Approver" || cfg.RoleName("XX") != "XX" {
		t.Fatalf("unexpected role names")
	}
	if cfg.PageSize() != 6 || cfg.CreatorRole() != "STLD" {
		t.Fatalf("unexpected tracking defaults")
	}
}

func TestValidateRejectsBadWorkflow(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"moc stage out of range", "moc_stage: 4", "moc_stage: 40"},
		{"lead stage before assignment", "lead_stages: [4, 5, 6]", "lead_stages: [2, 5, 6]"},
		{"unknown master stage", "      11: ananya.verma@godeepak.com", "      12: ananya.verma@godeepak.com"},
		{"unknown stage role", "role: CTSD}", "role: CMO}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := strings.Replace(GenerateDefault(), tc.old, tc.new, 1)
			if data == GenerateDefault() {
				t.Fatalf("fixture %q not found", tc.old)
			}
			if _, err := FromYAML([]byte(data)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateRequiresAdminRole(t *testing.T) {
	data := strings.Replace(GenerateDefault(), "  ADMIN:\n", "  ROOT:\n", 1)
	_, err := FromYAML([]byte(data))
	if err == nil || !strings.Contains(err.Error(), "ADMIN") {
		t.Fatalf("expected ADMIN error, got %v", err)
	}
}

func TestValidateWebhookURL(t *testing.T) {
	data := strings.Replace(GenerateDefault(), "webhooks: []", "webhooks:\n  - url: not-a-url\n", 1)
	if _, err := FromYAML([]byte(data)); err == nil {
		t.Fatalf("expected webhook url error")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.Organization.Name != "OpEx Hub" {
		t.Fatalf("expected default config, got %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	custom := strings.Replace(GenerateDefault(), "page_size: 6", "page_size: 12", 1)
	if err := os.WriteFile(Path(dir), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PageSize() != 12 {
		t.Fatalf("expected page size 12, got %d", cfg.PageSize())
	}
}
