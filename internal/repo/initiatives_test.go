package repo

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opexhub/internal/listing"
)

var initiativeCols = []string{
	"id", "initiative_number", "title", "description", "initiator_name", "status", "priority",
	"expected_savings", "actual_savings", "estimated_capex", "site", "discipline", "start_date", "end_date",
	"progress_percentage", "current_stage", "requires_moc", "requires_capex", "moc_number", "capex_number",
	"initiative_lead_email", "baseline_data", "target_outcome", "target_value", "confidence_level", "is_budgeted",
	"assumptions_json", "created_by", "created_at", "updated_at",
}

func initiativeRow(rows *sqlmock.Rows, id, number string) *sqlmock.Rows {
	return rows.AddRow(id, number, "Steam trap survey", "desc", "Ravi", "In Progress", "Medium",
		12.5, nil, 15.0, "NDS", "OP", "2025-04-01", "2026-04-01",
		18, 3, 1, 1, nil, nil,
		"lead@example.com", "base", "target", 3.8, 80, 0,
		`["a","b","c"]`, "u1", "2025-04-01T10:00:00Z", "2025-04-01T10:00:00Z")
}

func TestListInitiativesBuildsFilteredPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	where := `WHERE lower(i.status) LIKE ? ESCAPE '\' AND i.site=? AND (lower(i.title) LIKE ? ESCAPE '\' OR lower(i.initiative_number) LIKE ? ESCAPE '\' OR lower(i.id) LIKE ? ESCAPE '\')`
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM initiatives i ` + where)).
		WithArgs("%progress%", "NDS", `%50\%%`, `%50\%%`, `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM initiatives i ` + where + ` ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`)).
		WithArgs("%progress%", "NDS", `%50\%%`, `%50\%%`, `%50\%%`, 5, 10).
		WillReturnRows(initiativeRow(sqlmock.NewRows(initiativeCols), "i-11", "NDS/2025/011"))

	r := Repo{DB: db}
	page, err := r.ListInitiatives(context.Background(), InitiativeFilter{
		Filter: listing.Filter{Status: " Progress ", Site: "NDS", Search: "50%"},
		Page:   3,
		Size:   5,
	})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	in := page.Content[0]
	assert.Equal(t, "NDS/2025/011", in.InitiativeNumber)
	assert.True(t, in.RequiresMoc)
	assert.False(t, in.IsBudgeted)
	assert.Nil(t, in.ActualSavings)
	require.NotNil(t, in.InitiativeLeadEmail)
	assert.Equal(t, "lead@example.com", *in.InitiativeLeadEmail)
	assert.Equal(t, []string{"a", "b", "c"}, in.Assumptions)

	assert.Equal(t, 12, page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrevious)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListInitiativesWithoutFilterHasNoWhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM initiatives i`) + `$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM initiatives i ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?`)).
		WithArgs(listing.DefaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows(initiativeCols))

	page, err := Repo{DB: db}.ListInitiatives(context.Background(), InitiativeFilter{Filter: listing.Filter{Status: "all"}})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.NotNil(t, page.Content)
	assert.Equal(t, 1, page.Page)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTrackedInitiativesJoinsApprovedStage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	join := `JOIN workflow_transactions wt ON wt.initiative_id=i.id AND wt.stage_number=? AND wt.approve_status='approved' AND lower(wt.assigned_user_email)=lower(?) WHERE i.site=?`
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM initiatives i ` + join)).
		WithArgs(9, "suresh@example.com", "NDS").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(join + ` ORDER BY`)).
		WithArgs(9, "suresh@example.com", "NDS", 6, 0).
		WillReturnRows(initiativeRow(sqlmock.NewRows(initiativeCols), "i-1", "NDS/2025/001"))

	page, err := Repo{DB: db}.ListTrackedInitiatives(context.Background(), 9, " suresh@example.com ",
		InitiativeFilter{Filter: listing.Filter{Site: "NDS"}, Size: 6})
	require.NoError(t, err)
	assert.Len(t, page.Content, 1)
	assert.False(t, page.HasNext)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInitiativeNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM initiatives i WHERE i.id=?`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(initiativeCols))

	_, err = Repo{DB: db}.GetInitiative(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLikePatternEscapes(t *testing.T) {
	assert.Equal(t, `%a\_b\%c\\%`, likePattern(`A_b%c\`))
}
