package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"opexhub/internal/derive"
	"opexhub/internal/domain"
)

const (
	Title   = "INITIATIVE TRACKER SHEET"
	FormRef = "(CRP-002/F4-01)"
)

type Format string

const (
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts csv, html, markdown and md. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

func (f Format) Ext() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// Filename is Monthly_Initiative_Report_<yyyyMMdd_HHmmss>.<ext>.
func Filename(now time.Time, f Format) string {
	return fmt.Sprintf("Monthly_Initiative_Report_%s.%s", now.Format("20060102_150405"), f.Ext())
}

// Row is one initiative line of a monthly sheet.
type Row struct {
	SrNo             int
	Description      string
	Category         string
	InitiativeNumber string
	InitiationDate   string
	Leader           string
	TargetDate       string
	CapexCost        float64
	Status           string
	ExpectedSavings  float64
	ActualSavings    *float64
	AnnualizedValue  float64
	Remarks          string
}

// Sheet holds the rows of one financial-year month.
type Sheet struct {
	Month time.Time
	Rows  []Row
}

// Label renders the month as "Apr.25".
func (s Sheet) Label() string { return s.Month.Format("Jan.06") }

// Tracker is the whole report for one financial year.
type Tracker struct {
	Site        string
	FiscalYear  int
	GeneratedAt time.Time
	Sheets      []Sheet
}

// Options feed Build with the lookups it cannot derive from an initiative.
type Options struct {
	Site        string
	FiscalYear  int
	GeneratedAt time.Time
	// StageName names a workflow stage number for the Remarks column.
	StageName func(stage int) string
	// CreatorName resolves created_by when the initiator name is empty.
	CreatorName func(userID string) string
}

// FiscalMonths returns the twelve months April fy to March fy+1.
func FiscalMonths(fy int) []time.Time {
	out := make([]time.Time, 12)
	for i := range out {
		out[i] = time.Date(fy, time.April, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
	}
	return out
}

// FiscalYearOf returns the starting year of the financial year containing t.
func FiscalYearOf(t time.Time) int {
	if t.Month() < time.April {
		return t.Year() - 1
	}
	return t.Year()
}

// Build buckets initiatives into monthly sheets. An initiative is listed in
// every month whose last day is on or after its start date.
func Build(items []domain.Initiative, opts Options) Tracker {
	tr := Tracker{Site: opts.Site, FiscalYear: opts.FiscalYear, GeneratedAt: opts.GeneratedAt}
	for _, month := range FiscalMonths(opts.FiscalYear) {
		monthEnd := month.AddDate(0, 1, -1)
		sheet := Sheet{Month: month}
		for _, in := range items {
			if opts.Site != "" && in.Site != opts.Site {
				continue
			}
			if in.StartDate == "" {
				continue
			}
			start, err := derive.ParseDate(in.StartDate)
			if err != nil || start.After(monthEnd) {
				continue
			}
			sheet.Rows = append(sheet.Rows, newRow(len(sheet.Rows)+1, in, opts))
		}
		tr.Sheets = append(tr.Sheets, sheet)
	}
	return tr
}

func newRow(n int, in domain.Initiative, opts Options) Row {
	leader := in.InitiatorName
	if leader == "" && opts.CreatorName != nil {
		leader = opts.CreatorName(in.CreatedBy)
	}
	remarks := ""
	if opts.StageName != nil {
		remarks = opts.StageName(in.CurrentStage)
	}
	return Row{
		SrNo:             n,
		Description:      in.Title,
		Category:         in.Discipline,
		InitiativeNumber: in.InitiativeNumber,
		InitiationDate:   in.StartDate,
		Leader:           leader,
		TargetDate:       in.EndDate,
		CapexCost:        in.EstimatedCapex,
		Status:           in.Status,
		ExpectedSavings:  in.ExpectedSavings,
		ActualSavings:    in.ActualSavings,
		AnnualizedValue:  derive.AnnualizedValue(in.ExpectedSavings, in.ActualSavings),
		Remarks:          remarks,
	}
}

func (t Tracker) header() table.Row {
	return table.Row{
		"Sr. No.", "Description of Initiative", "Category", "Initiative No.",
		"Initiation Date", "Initiative Leader", "Target Date",
		"Modification or CAPEX Cost", "Current Status", "Expected Savings",
		"Actual Savings", fmt.Sprintf("Annualized Value FY%02d-%02d", t.FiscalYear%100, (t.FiscalYear+1)%100),
		"Remarks",
	}
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func (t Tracker) sheetWriter(s Sheet) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(t.header())
	for _, r := range s.Rows {
		actual := ""
		if r.ActualSavings != nil {
			actual = money(*r.ActualSavings)
		}
		tw.AppendRow(table.Row{
			r.SrNo, r.Description, r.Category, r.InitiativeNumber,
			r.InitiationDate, r.Leader, r.TargetDate, money(r.CapexCost),
			r.Status, money(r.ExpectedSavings), actual, money(r.AnnualizedValue),
			r.Remarks,
		})
	}
	return tw
}

// Render writes every sheet in the requested format.
func (t Tracker) Render(w io.Writer, f Format) error {
	updated := t.GeneratedAt.Format(derive.DateLayout)
	var b strings.Builder
	switch f {
	case FormatHTML:
		b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Initiative Tracker</title></head><body>\n")
		for _, s := range t.Sheets {
			fmt.Fprintf(&b, "<h2>%s (%s)</h2>\n<p>Tracker updated on Date: %s %s</p>\n", Title, s.Label(), updated, FormRef)
			b.WriteString(t.sheetWriter(s).RenderHTML())
			b.WriteString("\n")
		}
		b.WriteString("</body></html>\n")
	case FormatMarkdown:
		for i, s := range t.Sheets {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "## %s (%s)\n\nTracker updated on Date: %s %s\n\n", Title, s.Label(), updated, FormRef)
			b.WriteString(t.sheetWriter(s).RenderMarkdown())
			b.WriteString("\n")
		}
	case FormatCSV:
		for i, s := range t.Sheets {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s,%s\nTracker updated on Date:,%s,%s\n", Title, s.Label(), updated, FormRef)
			b.WriteString(t.sheetWriter(s).RenderCSV())
			b.WriteString("\n")
		}
	default:
		return fmt.Errorf("unsupported report format %q", f)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
