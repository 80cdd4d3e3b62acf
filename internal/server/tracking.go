package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"opexhub/internal/domain"
	"opexhub/internal/engine"
	"opexhub/internal/forms"
	"opexhub/internal/listing"
)

type entryPath struct {
	ID string `path:"id"`
}

type eligibleQuery struct {
	Status string `query:"status"`
	Site   string `query:"site"`
	Search string `query:"search"`
	Page   int    `query:"page" default:"1" minimum:"1"`
}

type initiativePage struct {
	Body listing.Page[domain.Initiative] `json:"body"`
}

// registerEligible exposes the initiatives the caller may track for kind.
func registerEligible(api huma.API, e engine.Engine, kind engine.TrackingKind, path string) {
	huma.Register(api, huma.Operation{
		OperationID: "list-" + string(kind) + "-initiatives",
		Method:      http.MethodGet,
		Path:        path,
		Summary:     "Initiatives assigned to the caller for " + string(kind),
	}, func(ctx context.Context, input *eligibleQuery) (*initiativePage, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.EligibleInitiatives(ctx, u, kind, listing.Filter{Status: input.Status, Site: input.Site, Search: input.Search}, input.Page)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &initiativePage{Body: page}, nil
	})
}

type monitoringBody struct {
	Body domain.MonitoringEntry `json:"body"`
}

type monitoringList struct {
	Body []domain.MonitoringEntry `json:"body"`
}

func registerMonitoring(api huma.API, e engine.Engine) {
	registerEligible(api, e, engine.TrackingMonitoring, "/monitoring/initiatives")

	huma.Register(api, huma.Operation{
		OperationID: "list-monitoring-entries",
		Method:      http.MethodGet,
		Path:        "/monitoring/initiatives/{id}/entries",
		Summary:     "Monthly monitoring entries of an initiative",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*monitoringList, error) {
		items, err := e.ListMonitoring(ctx, input.ID, "")
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringList{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-monitoring-entries-by-month",
		Method:      http.MethodGet,
		Path:        "/monitoring/initiatives/{id}/entries/month/{month}",
		Summary:     "Monitoring entries of one month",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Month string `path:"month" pattern:"^[0-9]{4}-[0-9]{2}$"`
	}) (*monitoringList, error) {
		items, err := e.ListMonitoring(ctx, input.ID, input.Month)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringList{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-fa-approvals",
		Method:      http.MethodGet,
		Path:        "/monitoring/initiatives/{id}/pending-fa-approvals",
		Summary:     "Finalized entries awaiting F&A approval",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*monitoringList, error) {
		items, err := e.PendingFAApprovals(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringList{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-monitoring-entry",
		Method:        http.MethodPost,
		Path:          "/monitoring/initiatives/{id}/entries",
		Summary:       "Create a monthly monitoring entry",
		Description:   "Deviation and deviation percentage are computed from target and achieved values.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body forms.Monitoring `json:"body"`
	}) (*monitoringBody, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMonitoring(ctx, u, input.ID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-monitoring-entry",
		Method:      http.MethodGet,
		Path:        "/monitoring/entries/{id}",
		Summary:     "Get a monitoring entry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *entryPath) (*monitoringBody, error) {
		m, err := e.GetMonitoring(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-monitoring-entry",
		Method:      http.MethodPut,
		Path:        "/monitoring/entries/{id}",
		Summary:     "Update a monitoring entry",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body forms.Monitoring `json:"body"`
	}) (*monitoringBody, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateMonitoring(ctx, u, input.ID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finalize-monitoring-entry",
		Method:      http.MethodPut,
		Path:        "/monitoring/entries/{id}/finalize",
		Summary:     "Set finalization of a monitoring entry",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body FinalizeRequest `json:"body"`
	}) (*monitoringBody, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.FinalizeMonitoring(ctx, u, input.ID, input.Body.IsFinalized)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fa-approve-monitoring-entry",
		Method:      http.MethodPut,
		Path:        "/monitoring/entries/{id}/fa-approval",
		Summary:     "Set F&A approval of a monitoring entry",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body FAApprovalRequest `json:"body"`
	}) (*monitoringBody, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.ApproveMonitoring(ctx, u, input.ID, input.Body.FAApproval, input.Body.FAComments)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &monitoringBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-monitoring-entry",
		Method:        http.MethodDelete,
		Path:          "/monitoring/entries/{id}",
		Summary:       "Delete a monitoring entry",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *entryPath) (*struct{}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMonitoring(ctx, u, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

type timelineBody struct {
	Body domain.TimelineEntry `json:"body"`
}

type timelineList struct {
	Body []domain.TimelineEntry `json:"body"`
}

func registerTimeline(api huma.API, e engine.Engine) {
	registerEligible(api, e, engine.TrackingTimeline, "/timeline/initiatives")

	huma.Register(api, huma.Operation{
		OperationID: "list-timeline-entries",
		Method:      http.MethodGet,
		Path:        "/timeline/initiatives/{id}/entries",
		Summary:     "Timeline entries of an initiative with computed progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*timelineList, error) {
		items, err := e.ListTimeline(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &timelineList{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-timeline-approvals",
		Method:      http.MethodGet,
		Path:        "/timeline/initiatives/{id}/pending-approvals",
		Summary:     "Timeline entries missing either approval",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*timelineList, error) {
		items, err := e.PendingTimelineApprovals(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &timelineList{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-timeline-entry",
		Method:        http.MethodPost,
		Path:          "/timeline/initiatives/{id}/entries",
		Summary:       "Create a timeline entry",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body forms.Timeline `json:"body"`
	}) (*timelineBody, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTimeline(ctx, u, input.ID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &timelineBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-timeline-entry",
		Method:      http.MethodGet,
		Path:        "/timeline/entries/{id}",
		Summary:     "Get a timeline entry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *entryPath) (*timelineBody, error) {
		t, err := e.GetTimeline(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &timelineBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-timeline-entry",
		Method:      http.MethodPut,
		Path:        "/timeline/entries/{id}",
		Summary:     "Update a timeline entry",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body forms.Timeline `json:"body"`
	}) (*timelineBody, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTimeline(ctx, u, input.ID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &timelineBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-timeline-approvals",
		Method:      http.MethodPut,
		Path:        "/timeline/entries/{id}/approvals",
		Summary:     "Set site lead and/or initiative lead approval",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body TimelineApprovalsRequest `json:"body"`
	}) (*timelineBody, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTimelineApprovals(ctx, u, input.ID, input.Body.SiteLeadApproval, input.Body.InitiativeLeadApproval)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &timelineBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-timeline-entry",
		Method:        http.MethodDelete,
		Path:          "/timeline/entries/{id}",
		Summary:       "Delete a timeline entry",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *entryPath) (*struct{}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTimeline(ctx, u, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}
