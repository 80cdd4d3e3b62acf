package domain

// User is a registered OpEx Hub account.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	PasswordHash string `json:"-"`
	Site         string `json:"site"`
	Discipline   string `json:"discipline"`
	Role         string `json:"role"`
	RoleName     string `json:"role_name"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Session struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	ExpiresAt string  `json:"expires_at" format:"date-time"`
	RevokedAt *string `json:"revoked_at,omitempty" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Initiative statuses.
const (
	InitiativePending    = "Pending"
	InitiativeInProgress = "In Progress"
	InitiativeRejected   = "Rejected"
	InitiativeCompleted  = "Completed"
)

type Initiative struct {
	ID                  string   `json:"id"`
	InitiativeNumber    string   `json:"initiative_number"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	InitiatorName       string   `json:"initiator_name"`
	Status              string   `json:"status"`
	Priority            string   `json:"priority"`
	ExpectedSavings     float64  `json:"expected_savings"`
	ActualSavings       *float64 `json:"actual_savings,omitempty"`
	EstimatedCapex      float64  `json:"estimated_capex"`
	Site                string   `json:"site"`
	Discipline          string   `json:"discipline"`
	StartDate           string   `json:"start_date,omitempty" format:"date"`
	EndDate             string   `json:"end_date,omitempty" format:"date"`
	ProgressPercentage  int      `json:"progress_percentage"`
	CurrentStage        int      `json:"current_stage"`
	RequiresMoc         bool     `json:"requires_moc"`
	RequiresCapex       bool     `json:"requires_capex"`
	MocNumber           *string  `json:"moc_number,omitempty"`
	CapexNumber         *string  `json:"capex_number,omitempty"`
	InitiativeLeadEmail *string  `json:"initiative_lead_email,omitempty"`
	BaselineData        string   `json:"baseline_data"`
	TargetOutcome       string   `json:"target_outcome"`
	TargetValue         float64  `json:"target_value"`
	ConfidenceLevel     int      `json:"confidence_level"`
	IsBudgeted          bool     `json:"is_budgeted"`
	Assumptions         []string `json:"assumptions"`
	CreatedBy           string   `json:"created_by"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

// Workflow transaction statuses.
const (
	StagePending  = "pending"
	StageApproved = "approved"
	StageRejected = "rejected"
)

type WorkflowTransaction struct {
	ID                string  `json:"id"`
	InitiativeID      string  `json:"initiative_id"`
	StageNumber       int     `json:"stage_number"`
	StageName         string  `json:"stage_name"`
	RequiredRole      string  `json:"required_role"`
	ApproveStatus     string  `json:"approve_status" enum:"pending,approved,rejected"`
	AssignedUserEmail *string `json:"assigned_user_email,omitempty"`
	Site              string  `json:"site"`
	ActionBy          *string `json:"action_by,omitempty"`
	ActionDate        *string `json:"action_date,omitempty" format:"date-time"`
	Comment           *string `json:"comment,omitempty"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
}

// WorkflowMaster is the default approver of one stage at one site.
type WorkflowMaster struct {
	Site        string `json:"site"`
	StageNumber int    `json:"stage_number"`
	Role        string `json:"role"`
	UserEmail   string `json:"user_email"`
}

type MonitoringEntry struct {
	ID                  string   `json:"id"`
	InitiativeID        string   `json:"initiative_id"`
	MonitoringMonth     string   `json:"monitoring_month" pattern:"^[0-9]{4}-[0-9]{2}$"`
	KPIDescription      string   `json:"kpi_description"`
	Category            *string  `json:"category,omitempty"`
	TargetValue         float64  `json:"target_value"`
	AchievedValue       *float64 `json:"achieved_value,omitempty"`
	Deviation           *float64 `json:"deviation,omitempty"`
	DeviationPercentage *float64 `json:"deviation_percentage,omitempty"`
	Remarks             *string  `json:"remarks,omitempty"`
	IsFinalized         bool     `json:"is_finalized"`
	FAApproval          bool     `json:"fa_approval"`
	FAComments          *string  `json:"fa_comments,omitempty"`
	EnteredBy           string   `json:"entered_by"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

// Timeline entry statuses. Any status may follow any other.
const (
	TimelinePending    = "PENDING"
	TimelineInProgress = "IN_PROGRESS"
	TimelineCompleted  = "COMPLETED"
	TimelineDelayed    = "DELAYED"
)

type TimelineEntry struct {
	ID                     string  `json:"id"`
	InitiativeID           string  `json:"initiative_id"`
	StageName              string  `json:"stage_name"`
	PlannedStartDate       string  `json:"planned_start_date" format:"date"`
	PlannedEndDate         string  `json:"planned_end_date" format:"date"`
	ActualStartDate        *string `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate          *string `json:"actual_end_date,omitempty" format:"date"`
	Status                 string  `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED,DELAYED"`
	ResponsiblePerson      string  `json:"responsible_person"`
	Remarks                *string `json:"remarks,omitempty"`
	DocumentPath           *string `json:"document_path,omitempty"`
	SiteLeadApproval       bool    `json:"site_lead_approval"`
	InitiativeLeadApproval bool    `json:"initiative_lead_approval"`
	ProgressPercentage     int     `json:"progress_percentage"`
	EnteredBy              string  `json:"entered_by"`
	UpdatedBy              *string `json:"updated_by,omitempty"`
	CreatedAt              string  `json:"created_at" format:"date-time"`
	UpdatedAt              string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}
