package forms

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalog struct{}

func (catalog) HasSite(code string) bool       { return code == "NDS" || code == "HSD1" }
func (catalog) HasDiscipline(code string) bool { return code == "OP" }
func (catalog) HasRole(code string) bool       { return code == "STLD" }

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func validInitiative() InitiativeForm {
	return InitiativeForm{
		Title:           "Reduce steam losses in dryer",
		InitiatorName:   "Ravi Kumar",
		Site:            "NDS",
		Discipline:      "OP",
		Date:            "2025-04-01",
		Description:     strings.Repeat("Insulate the dryer header and recover flash steam. ", 2),
		BaselineData:    "4.2 t/h steam",
		TargetOutcome:   "3.8 t/h steam",
		TargetValue:     3.8,
		ExpectedValue:   12.5,
		ConfidenceLevel: 80,
		EstimatedCapex:  15,
		Assumption1:     "Stable production",
		Assumption2:     "Steam price unchanged",
		Assumption3:     "Shutdown window available",
	}
}

func fieldsOf(t *testing.T, err error) FieldErrors {
	t.Helper()
	var verr ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr.Fields
}

func TestInitiativeValidateOK(t *testing.T) {
	require.NoError(t, validInitiative().Validate(now, catalog{}))
}

func TestInitiativeValidateCollectsAllFields(t *testing.T) {
	f := validInitiative()
	f.Title = "Too short"
	f.Description = "brief"
	f.ConfidenceLevel = 0
	f.ExpectedValue = -1
	f.Assumption2 = "  "
	f.Site = "XYZ"

	fields := fieldsOf(t, f.Validate(now, catalog{}))
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "description")
	assert.Contains(t, fields, "confidence_level")
	assert.Contains(t, fields, "expected_value")
	assert.Contains(t, fields, "assumption2")
	assert.Equal(t, "unknown site", fields["site"])
	assert.Len(t, fields, 6)
}

func TestInitiativeDateBounds(t *testing.T) {
	cases := map[string]string{
		"2025-06-16": "must not be in the future",
		"2019-12-31": "must not be before 2020-01-01",
		"15/06/2025": "must be a YYYY-MM-DD date",
		"":           "is required",
	}
	for date, msg := range cases {
		f := validInitiative()
		f.Date = date
		assert.Equal(t, msg, fieldsOf(t, f.Validate(now, nil))["date"], date)
	}

	f := validInitiative()
	f.Date = "2025-06-15"
	assert.NoError(t, f.Validate(now, nil), "today is allowed")
	f.Date = "2020-01-01"
	assert.NoError(t, f.Validate(now, nil))
}

func TestInitiativePayload(t *testing.T) {
	p, err := validInitiative().Payload()
	require.NoError(t, err)
	assert.Equal(t, "2025-04-01", p.StartDate)
	assert.Equal(t, "2026-04-01", p.EndDate)
	assert.True(t, p.RequiresMoc)
	assert.True(t, p.RequiresCapex)
	assert.Equal(t, DefaultPriority, p.Priority)
	assert.Equal(t, 12.5, p.ExpectedSavings)
	assert.Len(t, p.Assumptions, 3)

	f := validInitiative()
	f.EstimatedCapex = 0
	f.Priority = "High"
	p, err = f.Payload()
	require.NoError(t, err)
	assert.False(t, p.RequiresMoc)
	assert.False(t, p.RequiresCapex)
	assert.Equal(t, "High", p.Priority)
}

func TestSignupValidate(t *testing.T) {
	s := Signup{FullName: "A B", Email: "a@example.com", Password: "secret", Site: "NDS", Discipline: "OP", Role: "STLD"}
	require.NoError(t, s.Validate(catalog{}))

	for _, field := range []string{"full_name", "site", "discipline", "role"} {
		bad := s
		switch field {
		case "full_name":
			bad.FullName = ""
		case "site":
			bad.Site = ""
		case "discipline":
			bad.Discipline = ""
		case "role":
			bad.Role = ""
		}
		assert.Equal(t, "is required", fieldsOf(t, bad.Validate(catalog{}))[field], field)
	}

	bad := s
	bad.Email = "not-an-email"
	bad.Role = "CEO"
	fields := fieldsOf(t, bad.Validate(catalog{}))
	assert.Equal(t, "is not a valid email address", fields["email"])
	assert.Equal(t, "unknown role", fields["role"])

	assert.Equal(t, "a@example.com", Signup{Email: " A@Example.com "}.Normalized().Email)
}

func TestLoginValidate(t *testing.T) {
	fields := fieldsOf(t, Login{}.Validate())
	assert.Len(t, fields, 2)
	assert.NoError(t, Login{Email: "a@example.com", Password: "x"}.Validate())
}

func TestAttachments(t *testing.T) {
	var a Attachments
	a = a.Add(Attachment{Name: "plan.pdf", Size: 10}, Attachment{Name: "photo.jpg", Size: 20})
	a = a.Add(Attachment{Name: "plan.pdf", Size: 99})
	require.Len(t, a, 2)

	b := a.Remove(0)
	assert.Equal(t, Attachments{{Name: "photo.jpg", Size: 20}}, b)
	assert.Len(t, a, 2, "remove does not mutate the receiver")
	assert.Equal(t, b, b.Remove(5))
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := ValidationError{Fields: FieldErrors{"b": "x", "a": "y"}}
	assert.Equal(t, "validation failed: a: y; b: x", err.Error())
}
