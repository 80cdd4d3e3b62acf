package forms

import (
	"strings"

	"opexhub/internal/derive"
	"opexhub/internal/domain"
)

// InitiativeDraft is the full editable copy of an initiative saved by the
// detail modal. Workflow-owned fields (status, stage, progress, lead) are
// not part of it.
type InitiativeDraft struct {
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
	InitiatorName   string   `json:"initiator_name,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	Discipline      string   `json:"discipline,omitempty"`
	ExpectedSavings float64  `json:"expected_savings,omitempty"`
	ActualSavings   *float64 `json:"actual_savings,omitempty"`
	EstimatedCapex  float64  `json:"estimated_capex,omitempty"`
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
	MocNumber       *string  `json:"moc_number,omitempty"`
	CapexNumber     *string  `json:"capex_number,omitempty"`
	BaselineData    string   `json:"baseline_data,omitempty"`
	TargetOutcome   string   `json:"target_outcome,omitempty"`
	TargetValue     float64  `json:"target_value,omitempty"`
	ConfidenceLevel int      `json:"confidence_level,omitempty"`
	IsBudgeted      bool     `json:"is_budgeted,omitempty"`
	Assumptions     []string `json:"assumptions,omitempty"`
}

// DraftOf copies the editable fields of an initiative.
func DraftOf(in domain.Initiative) InitiativeDraft {
	return InitiativeDraft{
		Title:           in.Title,
		Description:     in.Description,
		InitiatorName:   in.InitiatorName,
		Priority:        in.Priority,
		Discipline:      in.Discipline,
		ExpectedSavings: in.ExpectedSavings,
		ActualSavings:   in.ActualSavings,
		EstimatedCapex:  in.EstimatedCapex,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		MocNumber:       in.MocNumber,
		CapexNumber:     in.CapexNumber,
		BaselineData:    in.BaselineData,
		TargetOutcome:   in.TargetOutcome,
		TargetValue:     in.TargetValue,
		ConfidenceLevel: in.ConfidenceLevel,
		IsBudgeted:      in.IsBudgeted,
		Assumptions:     append([]string(nil), in.Assumptions...),
	}
}

func (d InitiativeDraft) Validate(catalog Catalog) error {
	errs := FieldErrors{}
	title := strings.TrimSpace(d.Title)
	switch {
	case title == "":
		errs["title"] = "is required"
	case len([]rune(title)) > TitleMaxLength:
		errs["title"] = "must be at most 200 characters"
	}
	switch d.Priority {
	case "High", "Medium", "Low":
	default:
		errs["priority"] = "must be High, Medium or Low"
	}
	if d.ExpectedSavings < 0 {
		errs["expected_savings"] = "must not be negative"
	}
	if d.ActualSavings != nil && *d.ActualSavings < 0 {
		errs["actual_savings"] = "must not be negative"
	}
	if d.EstimatedCapex < 0 {
		errs["estimated_capex"] = "must not be negative"
	}
	if d.TargetValue < 0 {
		errs["target_value"] = "must not be negative"
	}
	if d.ConfidenceLevel < ConfidenceMin || d.ConfidenceLevel > ConfidenceMax {
		errs["confidence_level"] = "must be between 1 and 100"
	}
	start, startErr := derive.ParseDate(d.StartDate)
	if startErr != nil {
		errs["start_date"] = "must be a YYYY-MM-DD date"
	}
	end, endErr := derive.ParseDate(d.EndDate)
	if endErr != nil {
		errs["end_date"] = "must be a YYYY-MM-DD date"
	}
	if startErr == nil && endErr == nil && end.Before(start) {
		errs["end_date"] = "must not be before start_date"
	}
	if catalog != nil && !catalog.HasDiscipline(d.Discipline) {
		errs["discipline"] = "unknown discipline"
	}
	return errs.err()
}

// Apply writes the draft onto in and re-derives the CAPEX flags.
func (d InitiativeDraft) Apply(in domain.Initiative) domain.Initiative {
	in.Title = strings.TrimSpace(d.Title)
	in.Description = strings.TrimSpace(d.Description)
	in.InitiatorName = strings.TrimSpace(d.InitiatorName)
	in.Priority = d.Priority
	in.Discipline = d.Discipline
	in.ExpectedSavings = d.ExpectedSavings
	in.ActualSavings = d.ActualSavings
	in.EstimatedCapex = d.EstimatedCapex
	in.StartDate = d.StartDate
	in.EndDate = d.EndDate
	in.MocNumber = d.MocNumber
	in.CapexNumber = d.CapexNumber
	in.BaselineData = d.BaselineData
	in.TargetOutcome = d.TargetOutcome
	in.TargetValue = d.TargetValue
	in.ConfidenceLevel = d.ConfidenceLevel
	in.IsBudgeted = d.IsBudgeted
	in.Assumptions = append([]string{}, d.Assumptions...)
	flags := derive.Capex(d.EstimatedCapex)
	in.RequiresMoc = flags.RequiresMoc
	in.RequiresCapex = flags.RequiresCapex
	return in
}

// Monitoring is a monthly KPI entry as entered by a site lead.
type Monitoring struct {
	MonitoringMonth string   `json:"monitoring_month,omitempty"`
	KPIDescription  string   `json:"kpi_description,omitempty"`
	Category        *string  `json:"category,omitempty"`
	TargetValue     *float64 `json:"target_value,omitempty"`
	AchievedValue   *float64 `json:"achieved_value,omitempty"`
	Remarks         *string  `json:"remarks,omitempty"`
}

func (m Monitoring) Validate() error {
	errs := FieldErrors{}
	if strings.TrimSpace(m.MonitoringMonth) == "" {
		errs["monitoring_month"] = "is required"
	} else if _, err := derive.ParseMonth(m.MonitoringMonth); err != nil {
		errs["monitoring_month"] = "must be a YYYY-MM month"
	}
	errs.required("kpi_description", m.KPIDescription)
	if m.TargetValue == nil {
		errs["target_value"] = "is required"
	}
	return errs.err()
}

// Apply copies the form onto e and recomputes the deviation.
func (m Monitoring) Apply(e domain.MonitoringEntry) domain.MonitoringEntry {
	e.MonitoringMonth = m.MonitoringMonth
	e.KPIDescription = strings.TrimSpace(m.KPIDescription)
	e.Category = m.Category
	if m.TargetValue != nil {
		e.TargetValue = *m.TargetValue
	}
	e.AchievedValue = m.AchievedValue
	e.Remarks = m.Remarks
	e.Deviation, e.DeviationPercentage = derive.Deviation(m.TargetValue, m.AchievedValue)
	return e
}

var timelineStatuses = map[string]bool{
	domain.TimelinePending:    true,
	domain.TimelineInProgress: true,
	domain.TimelineCompleted:  true,
	domain.TimelineDelayed:    true,
}

// Timeline is a timeline stage entry. Status may move between any of the
// four values.
type Timeline struct {
	StageName         string  `json:"stage_name,omitempty"`
	PlannedStartDate  string  `json:"planned_start_date,omitempty"`
	PlannedEndDate    string  `json:"planned_end_date,omitempty"`
	ActualStartDate   *string `json:"actual_start_date,omitempty"`
	ActualEndDate     *string `json:"actual_end_date,omitempty"`
	Status            string  `json:"status,omitempty"`
	ResponsiblePerson string  `json:"responsible_person,omitempty"`
	Remarks           *string `json:"remarks,omitempty"`
	DocumentPath      *string `json:"document_path,omitempty"`
}

func (t Timeline) Validate() error {
	errs := FieldErrors{}
	errs.required("stage_name", t.StageName)
	errs.required("responsible_person", t.ResponsiblePerson)
	start, startErr := derive.ParseDate(t.PlannedStartDate)
	if startErr != nil {
		errs["planned_start_date"] = "must be a YYYY-MM-DD date"
	}
	end, endErr := derive.ParseDate(t.PlannedEndDate)
	if endErr != nil {
		errs["planned_end_date"] = "must be a YYYY-MM-DD date"
	}
	if startErr == nil && endErr == nil && end.Before(start) {
		errs["planned_end_date"] = "must not be before planned_start_date"
	}
	for field, v := range map[string]*string{"actual_start_date": t.ActualStartDate, "actual_end_date": t.ActualEndDate} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := derive.ParseDate(*v); err != nil {
			errs[field] = "must be a YYYY-MM-DD date"
		}
	}
	if t.Status != "" && !timelineStatuses[t.Status] {
		errs["status"] = "must be PENDING, IN_PROGRESS, COMPLETED or DELAYED"
	}
	return errs.err()
}

// Apply copies the form onto e. An empty status keeps the current one, or
// PENDING for a new entry.
func (t Timeline) Apply(e domain.TimelineEntry) domain.TimelineEntry {
	e.StageName = strings.TrimSpace(t.StageName)
	e.PlannedStartDate = t.PlannedStartDate
	e.PlannedEndDate = t.PlannedEndDate
	e.ActualStartDate = t.ActualStartDate
	e.ActualEndDate = t.ActualEndDate
	switch {
	case t.Status != "":
		e.Status = t.Status
	case e.Status == "":
		e.Status = domain.TimelinePending
	}
	e.ResponsiblePerson = strings.TrimSpace(t.ResponsiblePerson)
	e.Remarks = t.Remarks
	e.DocumentPath = t.DocumentPath
	return e
}
