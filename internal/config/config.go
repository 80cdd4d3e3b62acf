package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models opexhub.yml.
type Config struct {
	Organization struct {
		Name string `yaml:"name"`
	} `yaml:"organization"`
	Sites       []CatalogItem   `yaml:"sites"`
	Disciplines []CatalogItem   `yaml:"disciplines"`
	Roles       map[string]Role `yaml:"roles"`
	Workflow    Workflow        `yaml:"workflow"`
	Initiative  struct {
		CreatorRole     string `yaml:"creator_role"`
		DefaultPriority string `yaml:"default_priority"`
	} `yaml:"initiative"`
	Tracking Tracking        `yaml:"tracking"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type CatalogItem struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

type Role struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type Stage struct {
	Number int    `yaml:"number" json:"number"`
	Name   string `yaml:"name" json:"name"`
	Role   string `yaml:"role" json:"role"`
}

type Workflow struct {
	Stages              []Stage `yaml:"stages"`
	LeadAssignmentStage int     `yaml:"lead_assignment_stage"`
	LeadRole            string  `yaml:"lead_role"`
	LeadStages          []int   `yaml:"lead_stages"`
	MocStage            int     `yaml:"moc_stage"`
	CapexStage          int     `yaml:"capex_stage"`
	// Masters maps site code -> stage number -> approver email.
	Masters map[string]map[int]string `yaml:"masters"`
}

type Tracking struct {
	MonitoringStage int `yaml:"monitoring_stage"`
	TimelineStage   int `yaml:"timeline_stage"`
	PageSize        int `yaml:"page_size"`
}

type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with opex config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("config.sites is required")
	}
	if err := validateCatalog("sites", c.Sites); err != nil {
		return err
	}
	if len(c.Disciplines) == 0 {
		return fmt.Errorf("config.disciplines is required")
	}
	if err := validateCatalog("disciplines", c.Disciplines); err != nil {
		return err
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("config.roles is required")
	}
	if _, ok := c.Roles["ADMIN"]; !ok {
		return fmt.Errorf("config.roles must include ADMIN")
	}
	for code, role := range c.Roles {
		if code == "" {
			return fmt.Errorf("config.roles contains empty role code")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", code)
			}
		}
	}
	if len(c.Workflow.Stages) == 0 {
		return fmt.Errorf("config.workflow.stages is required")
	}
	for i, st := range c.Workflow.Stages {
		if st.Number != i+1 {
			return fmt.Errorf("workflow stage %d out of order (got number %d)", i+1, st.Number)
		}
		if st.Name == "" {
			return fmt.Errorf("workflow stage %d has empty name", st.Number)
		}
		if _, ok := c.Roles[st.Role]; !ok {
			return fmt.Errorf("workflow stage %d references unknown role %s", st.Number, st.Role)
		}
	}
	for name, n := range map[string]int{
		"lead_assignment_stage": c.Workflow.LeadAssignmentStage,
		"moc_stage":             c.Workflow.MocStage,
		"capex_stage":           c.Workflow.CapexStage,
		"tracking.monitoring":   c.Tracking.MonitoringStage,
		"tracking.timeline":     c.Tracking.TimelineStage,
	} {
		if n != 0 && (n < 1 || n > len(c.Workflow.Stages)) {
			return fmt.Errorf("%s %d is not a workflow stage", name, n)
		}
	}
	for _, n := range c.Workflow.LeadStages {
		if n <= c.Workflow.LeadAssignmentStage || n > len(c.Workflow.Stages) {
			return fmt.Errorf("lead stage %d must follow the lead assignment stage", n)
		}
	}
	if len(c.Workflow.LeadStages) > 0 {
		if _, ok := c.Roles[c.Workflow.LeadRole]; !ok {
			return fmt.Errorf("workflow.lead_role %q is not a role", c.Workflow.LeadRole)
		}
	}
	for site, stages := range c.Workflow.Masters {
		if !c.HasSite(site) {
			return fmt.Errorf("workflow.masters references unknown site %s", site)
		}
		for n, email := range stages {
			if _, ok := c.Stage(n); !ok {
				return fmt.Errorf("workflow.masters.%s references unknown stage %d", site, n)
			}
			if !strings.Contains(email, "@") {
				return fmt.Errorf("workflow.masters.%s.%d has invalid email %q", site, n, email)
			}
		}
	}
	if c.Initiative.CreatorRole != "" {
		if _, ok := c.Roles[c.Initiative.CreatorRole]; !ok {
			return fmt.Errorf("initiative.creator_role %s is not a role", c.Initiative.CreatorRole)
		}
	}
	if c.Tracking.PageSize < 0 {
		return fmt.Errorf("tracking.page_size must be positive")
	}
	for i, wh := range c.Webhooks {
		u, err := url.Parse(wh.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhooks[%d].url %q is invalid", i, wh.URL)
		}
	}
	return nil
}

func validateCatalog(name string, items []CatalogItem) error {
	seen := map[string]bool{}
	for _, it := range items {
		if it.Code == "" {
			return fmt.Errorf("config.%s contains empty code", name)
		}
		if seen[it.Code] {
			return fmt.Errorf("config.%s has duplicate code %s", name, it.Code)
		}
		seen[it.Code] = true
	}
	return nil
}

// Stage returns the stage definition for a stage number.
func (c *Config) Stage(n int) (Stage, bool) {
	if n < 1 || n > len(c.Workflow.Stages) {
		return Stage{}, false
	}
	return c.Workflow.Stages[n-1], true
}

// LastStage is the number of the closing stage.
func (c *Config) LastStage() int {
	return len(c.Workflow.Stages)
}

func (c *Config) IsLeadStage(n int) bool {
	for _, s := range c.Workflow.LeadStages {
		if s == n {
			return true
		}
	}
	return false
}

// MasterEmail returns the default approver for a site and stage.
func (c *Config) MasterEmail(site string, stage int) string {
	if c.Workflow.Masters == nil {
		return ""
	}
	return c.Workflow.Masters[site][stage]
}

func (c *Config) HasSite(code string) bool {
	return hasCode(c.Sites, code)
}

func (c *Config) HasDiscipline(code string) bool {
	return hasCode(c.Disciplines, code)
}

func (c *Config) HasRole(code string) bool {
	_, ok := c.Roles[code]
	return ok
}

func (c *Config) RoleName(code string) string {
	if r, ok := c.Roles[code]; ok && r.Name != "" {
		return r.Name
	}
	return code
}

// RoleCodes returns role codes sorted.
func (c *Config) RoleCodes() []string {
	codes := make([]string, 0, len(c.Roles))
	for code := range c.Roles {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (c *Config) RolePermissions(code string) []string {
	return c.Roles[code].Permissions
}

func (c *Config) CreatorRole() string {
	if c.Initiative.CreatorRole == "" {
		return "STLD"
	}
	return c.Initiative.CreatorRole
}

func (c *Config) PageSize() int {
	if c.Tracking.PageSize <= 0 {
		return 6
	}
	return c.Tracking.PageSize
}

func hasCode(items []CatalogItem, code string) bool {
	for _, it := range items {
		if it.Code == code {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "opexhub.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `organization:
  name: OpEx Hub

sites:
  - {code: NDS, name: NDS}
  - {code: HSD1, name: HSD1}
  - {code: HSD2, name: HSD2}
  - {code: HSD3, name: HSD3}
  - {code: DHJ, name: DHJ}
  - {code: APL, name: APL}
  - {code: TCD, name: TCD}

disciplines:
  - {code: OP, name: Operation}
  - {code: EG, name: Engineering & Utility}
  - {code: EV, name: Environment}
  - {code: SF, name: Safety}
  - {code: QA, name: Quality}
  - {code: OT, name: Others}

roles:
  STLD:
    name: Site TSD Lead
    permissions: [initiative.read, initiative.create, initiative.update, initiative.delete, report.export]
  SH:
    name: Site Head
    permissions: [initiative.read, report.export]
  EH:
    name: Engineering Head
    permissions: [initiative.read, report.export]
  IL:
    name: Initiative Lead
    permissions: [initiative.read]
  CTSD:
    name: Corp TSD
    permissions: [initiative.read, report.export]
  FA:
    name: F&A Approver
    permissions: [initiative.read, report.export]
  ADMIN:
    name: Administrator
    permissions: [initiative.read, initiative.create, initiative.update, initiative.delete, report.export, events.read]

workflow:
  stages:
    - {number: 1, name: Register Initiative, role: STLD}
    - {number: 2, name: Approval, role: SH}
    - {number: 3, name: Define Responsibilities, role: EH}
    - {number: 4, name: MOC Stage, role: IL}
    - {number: 5, name: CAPEX Stage, role: IL}
    - {number: 6, name: Initiative Timeline Tracker, role: IL}
    - {number: 7, name: Trial Implementation & Performance Check, role: STLD}
    - {number: 8, name: Periodic Status Review with CMO, role: CTSD}
    - {number: 9, name: Savings Monitoring (1 Month), role: STLD}
    - {number: 10, name: Saving Validation with F&A, role: STLD}
    - {number: 11, name: Initiative Closure, role: STLD}
  lead_assignment_stage: 3
  lead_role: IL
  lead_stages: [4, 5, 6]
  moc_stage: 4
  capex_stage: 5
  masters:
    NDS:
      1: manoj.tiwari@godeepak.com
      2: priya.sharma@godeepak.com
      3: amit.patel@godeepak.com
      7: vikram.gupta@godeepak.com
      8: kavya.nair@godeepak.com
      9: suresh.reddy@godeepak.com
      10: rohit.jain@godeepak.com
      11: ananya.verma@godeepak.com

initiative:
  creator_role: STLD
  default_priority: Medium

tracking:
  monitoring_stage: 9
  timeline_stage: 6
  page_size: 6

webhooks: []
`
