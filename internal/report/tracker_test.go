package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opexhub/internal/domain"
)

func f64(v float64) *float64 { return &v }

func fixtures() []domain.Initiative {
	return []domain.Initiative{
		{ID: "1", InitiativeNumber: "NDS/2025/001", Title: "Boiler heat recovery", Discipline: "EG", Site: "NDS",
			StartDate: "2025-04-10", EndDate: "2026-04-10", Status: "In Progress", EstimatedCapex: 12, ExpectedSavings: 40,
			InitiatorName: "Ravi", CurrentStage: 4},
		{ID: "2", InitiativeNumber: "NDS/2025/002", Title: "Pump VFD retrofit", Discipline: "OP", Site: "NDS",
			StartDate: "2025-06-01", EndDate: "2026-06-01", Status: "Completed", ExpectedSavings: 10, ActualSavings: f64(14),
			CreatedBy: "u-2", CurrentStage: 11},
		{ID: "3", InitiativeNumber: "DHJ/2025/001", Title: "Other site", Site: "DHJ", StartDate: "2025-04-01"},
	}
}

func stageName(n int) string { return map[int]string{4: "MOC Stage", 11: "Initiative Closure"}[n] }

func TestBuildBucketsByStartMonth(t *testing.T) {
	tr := Build(fixtures(), Options{Site: "NDS", FiscalYear: 2025, StageName: stageName,
		CreatorName: func(id string) string { return "creator-" + id }})

	require.Len(t, tr.Sheets, 12)
	assert.Equal(t, "Apr.25", tr.Sheets[0].Label())
	assert.Equal(t, "Mar.26", tr.Sheets[11].Label())

	assert.Len(t, tr.Sheets[0].Rows, 1, "April lists only the April start")
	assert.Len(t, tr.Sheets[1].Rows, 1, "May")
	require.Len(t, tr.Sheets[2].Rows, 2, "June includes the June 1st start")

	pump := tr.Sheets[2].Rows[1]
	assert.Equal(t, 2, pump.SrNo)
	assert.Equal(t, "creator-u-2", pump.Leader)
	assert.Equal(t, 14.0, pump.AnnualizedValue)
	assert.Equal(t, "Initiative Closure", pump.Remarks)

	boiler := tr.Sheets[0].Rows[0]
	assert.Equal(t, "Ravi", boiler.Leader)
	assert.Equal(t, 40.0, boiler.AnnualizedValue)
	assert.Equal(t, "MOC Stage", boiler.Remarks)
}

func TestRenderFormats(t *testing.T) {
	tr := Build(fixtures(), Options{Site: "NDS", FiscalYear: 2025, GeneratedAt: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)})

	for _, f := range []Format{FormatCSV, FormatHTML, FormatMarkdown} {
		var b strings.Builder
		require.NoError(t, tr.Render(&b, f), f)
		out := b.String()
		assert.Equal(t, 12, strings.Count(out, Title), f)
		assert.Contains(t, out, FormRef, f)
		assert.Contains(t, out, "NDS/2025/002", f)
		assert.Contains(t, out, "Apr.25", f)
		assert.Contains(t, out, "2025-07-01", f)
		assert.NotContains(t, out, "DHJ/2025/001", f)
		assert.Contains(t, strings.ToLower(out), "annualized value fy25-26", f)
	}

	var b strings.Builder
	assert.Error(t, tr.Render(&b, Format("xlsx")))
}

func TestFormatHelpers(t *testing.T) {
	f, err := ParseFormat("MD")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)
	_, err = ParseFormat("pdf")
	assert.Error(t, err)

	now := time.Date(2025, 8, 9, 14, 3, 7, 0, time.UTC)
	assert.Equal(t, "Monthly_Initiative_Report_20250809_140307.md", Filename(now, FormatMarkdown))
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())

	assert.Equal(t, 2024, FiscalYearOf(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2025, FiscalYearOf(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
}
