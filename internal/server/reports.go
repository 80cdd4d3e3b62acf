package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"opexhub/internal/engine"
	"opexhub/internal/repo"
	"opexhub/internal/report"
)

const maxEventLimit = 200

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "initiative-tracker-report",
		Method:      http.MethodGet,
		Path:        "/reports/initiative-tracker",
		Summary:     "Download the monthly initiative tracker",
		Description: "One section per month of the financial year (April to March). year is the starting year; it defaults to the current financial year.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Site   string `query:"site"`
		Year   int    `query:"year"`
		Format string `query:"format" enum:"csv,html,markdown,md" default:"csv"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		format, err := report.ParseFormat(input.Format)
		if err != nil {
			return nil, badRequest(err.Error(), map[string]any{"format": input.Format})
		}
		tr, err := e.TrackerReport(ctx, u, engine.TrackerOptions{Site: input.Site, FiscalYear: input.Year})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		var buf bytes.Buffer
		if err := tr.Render(&buf, format); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        format.ContentType(),
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", report.Filename(tr.GeneratedAt, format)),
			Body:               buf.Bytes(),
		}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"initiative,monitoring_entry,timeline_entry,user"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, badRequest("invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.EventLog(ctx, u, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedEvents{Items: items}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			resp.Items = items[:limit]
		}
		resp.Items = nonNilSlice(resp.Items)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > maxEventLimit {
		return maxEventLimit
	}
	return in
}
