// Package forms validates user-entered forms and turns them into the payloads
// the engine persists. Validation collects every failing field before
// returning.
package forms

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"opexhub/internal/derive"
)

const (
	TitleMinLength       = 10
	TitleMaxLength       = 200
	DescriptionMinLength = 50
	ConfidenceMin        = 1
	ConfidenceMax        = 100
	DefaultPriority      = "Medium"
)

// EarliestStartDate is the oldest initiative start date accepted.
var EarliestStartDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// FieldErrors maps a field name to its message.
type FieldErrors map[string]string

// ValidationError is returned when one or more fields fail validation.
type ValidationError struct {
	Fields FieldErrors
}

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (f FieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f[field] = "is required"
	}
}

func (f FieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return ValidationError{Fields: f}
}

// Signup is the registration form.
type Signup struct {
	FullName   string `json:"full_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password,omitempty"`
	Site       string `json:"site,omitempty"`
	Discipline string `json:"discipline,omitempty"`
	Role       string `json:"role,omitempty"`
}

// Catalog is the lookup data forms validate codes against.
type Catalog interface {
	HasSite(code string) bool
	HasDiscipline(code string) bool
	HasRole(code string) bool
}

// Validate checks required fields and, when catalog is non-nil, the codes.
func (s Signup) Validate(catalog Catalog) error {
	errs := FieldErrors{}
	errs.required("full_name", s.FullName)
	errs.required("email", s.Email)
	errs.required("password", s.Password)
	errs.required("site", s.Site)
	errs.required("discipline", s.Discipline)
	errs.required("role", s.Role)
	if _, ok := errs["email"]; !ok {
		if _, err := mail.ParseAddress(strings.TrimSpace(s.Email)); err != nil {
			errs["email"] = "is not a valid email address"
		}
	}
	if catalog != nil {
		if _, ok := errs["site"]; !ok && !catalog.HasSite(s.Site) {
			errs["site"] = "unknown site"
		}
		if _, ok := errs["discipline"]; !ok && !catalog.HasDiscipline(s.Discipline) {
			errs["discipline"] = "unknown discipline"
		}
		if _, ok := errs["role"]; !ok && !catalog.HasRole(s.Role) {
			errs["role"] = "unknown role"
		}
	}
	return errs.err()
}

// Normalized trims whitespace and lower-cases the email.
func (s Signup) Normalized() Signup {
	s.FullName = strings.TrimSpace(s.FullName)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Site = strings.TrimSpace(s.Site)
	s.Discipline = strings.TrimSpace(s.Discipline)
	s.Role = strings.TrimSpace(s.Role)
	return s
}

type Login struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// Validate rejects empty credentials so no lookup happens.
func (l Login) Validate() error {
	errs := FieldErrors{}
	errs.required("email", l.Email)
	if l.Password == "" {
		errs["password"] = "is required"
	}
	return errs.err()
}

// InitiativeForm is the initiative creation form.
type InitiativeForm struct {
	Title           string  `json:"title,omitempty"`
	InitiatorName   string  `json:"initiator_name,omitempty"`
	Site            string  `json:"site,omitempty"`
	Discipline      string  `json:"discipline,omitempty"`
	Date            string  `json:"date,omitempty"`
	Description     string  `json:"description,omitempty"`
	BaselineData    string  `json:"baseline_data,omitempty"`
	TargetOutcome   string  `json:"target_outcome,omitempty"`
	TargetValue     float64 `json:"target_value,omitempty"`
	ExpectedValue   float64 `json:"expected_value,omitempty"`
	ConfidenceLevel int     `json:"confidence_level,omitempty"`
	EstimatedCapex  float64 `json:"estimated_capex,omitempty"`
	Budgeted        bool    `json:"budgeted,omitempty"`
	Priority        string  `json:"priority,omitempty"`
	Assumption1     string  `json:"assumption1,omitempty"`
	Assumption2     string  `json:"assumption2,omitempty"`
	Assumption3     string  `json:"assumption3,omitempty"`
}

// Validate checks every field against now. Codes are checked only when
// catalog is non-nil.
func (f InitiativeForm) Validate(now time.Time, catalog Catalog) error {
	errs := FieldErrors{}

	title := strings.TrimSpace(f.Title)
	switch {
	case title == "":
		errs["title"] = "is required"
	case len([]rune(title)) < TitleMinLength:
		errs["title"] = fmt.Sprintf("must be at least %d characters", TitleMinLength)
	case len([]rune(title)) > TitleMaxLength:
		errs["title"] = fmt.Sprintf("must be at most %d characters", TitleMaxLength)
	}
	errs.required("initiator_name", f.InitiatorName)
	errs.required("site", f.Site)
	errs.required("discipline", f.Discipline)
	errs.required("baseline_data", f.BaselineData)
	errs.required("target_outcome", f.TargetOutcome)
	errs.required("assumption1", f.Assumption1)
	errs.required("assumption2", f.Assumption2)
	errs.required("assumption3", f.Assumption3)

	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		errs["description"] = "is required"
	} else if len([]rune(desc)) < DescriptionMinLength {
		errs["description"] = fmt.Sprintf("must be at least %d characters", DescriptionMinLength)
	}

	if f.TargetValue < 0 {
		errs["target_value"] = "must not be negative"
	}
	if f.ExpectedValue < 0 {
		errs["expected_value"] = "must not be negative"
	}
	if f.EstimatedCapex < 0 {
		errs["estimated_capex"] = "must not be negative"
	}
	if f.ConfidenceLevel < ConfidenceMin || f.ConfidenceLevel > ConfidenceMax {
		errs["confidence_level"] = fmt.Sprintf("must be between %d and %d", ConfidenceMin, ConfidenceMax)
	}
	switch f.Priority {
	case "", "High", "Medium", "Low":
	default:
		errs["priority"] = "must be High, Medium or Low"
	}

	if strings.TrimSpace(f.Date) == "" {
		errs["date"] = "is required"
	} else if d, err := derive.ParseDate(f.Date); err != nil {
		errs["date"] = "must be a YYYY-MM-DD date"
	} else {
		y, m, dd := now.UTC().Date()
		today := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
		if d.After(today) {
			errs["date"] = "must not be in the future"
		} else if d.Before(EarliestStartDate) {
			errs["date"] = "must not be before 2020-01-01"
		}
	}

	if catalog != nil {
		if _, ok := errs["site"]; !ok && !catalog.HasSite(f.Site) {
			errs["site"] = "unknown site"
		}
		if _, ok := errs["discipline"]; !ok && !catalog.HasDiscipline(f.Discipline) {
			errs["discipline"] = "unknown discipline"
		}
	}
	return errs.err()
}

// InitiativePayload is the validated form with derived fields applied.
type InitiativePayload struct {
	Title           string
	Description     string
	InitiatorName   string
	Priority        string
	ExpectedSavings float64
	EstimatedCapex  float64
	Site            string
	Discipline      string
	StartDate       string
	EndDate         string
	RequiresMoc     bool
	RequiresCapex   bool
	BaselineData    string
	TargetOutcome   string
	TargetValue     float64
	ConfidenceLevel int
	IsBudgeted      bool
	Assumptions     []string
}

// Payload derives the persisted fields. Call Validate first.
func (f InitiativeForm) Payload() (InitiativePayload, error) {
	start, err := derive.ParseDate(f.Date)
	if err != nil {
		return InitiativePayload{}, err
	}
	flags := derive.Capex(f.EstimatedCapex)
	priority := f.Priority
	if priority == "" {
		priority = DefaultPriority
	}
	return InitiativePayload{
		Title:           strings.TrimSpace(f.Title),
		Description:     strings.TrimSpace(f.Description),
		InitiatorName:   strings.TrimSpace(f.InitiatorName),
		Priority:        priority,
		ExpectedSavings: f.ExpectedValue,
		EstimatedCapex:  f.EstimatedCapex,
		Site:            strings.TrimSpace(f.Site),
		Discipline:      strings.TrimSpace(f.Discipline),
		StartDate:       start.Format(derive.DateLayout),
		EndDate:         derive.EndDate(start).Format(derive.DateLayout),
		RequiresMoc:     flags.RequiresMoc,
		RequiresCapex:   flags.RequiresCapex,
		BaselineData:    strings.TrimSpace(f.BaselineData),
		TargetOutcome:   strings.TrimSpace(f.TargetOutcome),
		TargetValue:     f.TargetValue,
		ConfidenceLevel: f.ConfidenceLevel,
		IsBudgeted:      f.Budgeted,
		Assumptions: []string{
			strings.TrimSpace(f.Assumption1),
			strings.TrimSpace(f.Assumption2),
			strings.TrimSpace(f.Assumption3),
		},
	}, nil
}

// Attachment is a file picked on the form. Attachments are never uploaded.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Attachments is the ordered list of files held by a form.
type Attachments []Attachment

// Add appends files, skipping names already present.
func (a Attachments) Add(files ...Attachment) Attachments {
	out := append(Attachments(nil), a...)
	for _, f := range files {
		if !out.has(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// Remove drops the attachment at index; out-of-range indexes are ignored.
func (a Attachments) Remove(index int) Attachments {
	if index < 0 || index >= len(a) {
		return a
	}
	out := make(Attachments, 0, len(a)-1)
	out = append(out, a[:index]...)
	return append(out, a[index+1:]...)
}

func (a Attachments) has(name string) bool {
	for _, f := range a {
		if f.Name == name {
			return true
		}
	}
	return false
}
