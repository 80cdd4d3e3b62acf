package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"opexhub/internal/domain"
	"opexhub/internal/engine"
	"opexhub/internal/forms"
	"opexhub/internal/listing"
	"opexhub/internal/repo"
)

type initiativePath struct {
	ID string `path:"id"`
}

func registerInitiatives(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-initiatives",
		Method:      http.MethodGet,
		Path:        "/initiatives",
		Summary:     "List initiatives",
		Description: "Filters are combined with AND. status and search are case-insensitive substring matches; site is exact. Ordered newest first.",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Site   string `query:"site"`
		Search string `query:"search"`
		Page   int    `query:"page" default:"1" minimum:"1"`
		Size   int    `query:"size" default:"10" minimum:"1" maximum:"100"`
	}) (*struct {
		Body listing.Page[domain.Initiative] `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RequirePermission(u, "initiative.read"); err != nil {
			return nil, handleError(ctx, err)
		}
		page, err := e.ListInitiatives(ctx, repo.InitiativeFilter{
			Filter: listing.Filter{Status: input.Status, Site: input.Site, Search: input.Search},
			Page:   input.Page,
			Size:   input.Size,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body listing.Page[domain.Initiative] `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-initiative",
		Method:        http.MethodPost,
		Path:          "/initiatives",
		Summary:       "Create initiative",
		Description:   "Registers the initiative, records stage 1 as approved by the creator and opens stage 2.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body forms.InitiativeForm `json:"body"`
	}) (*struct {
		Body domain.Initiative `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.CreateInitiative(ctx, u, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Initiative `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-initiative",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}",
		Summary:     "Get initiative",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*struct {
		Body domain.Initiative `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RequirePermission(u, "initiative.read"); err != nil {
			return nil, handleError(ctx, err)
		}
		in, err := e.GetInitiative(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Initiative `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-initiative",
		Method:      http.MethodPut,
		Path:        "/initiatives/{id}",
		Summary:     "Save an initiative draft",
		Description: "Replaces every editable field at once. CAPEX flags are re-derived.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body forms.InitiativeDraft `json:"body"`
	}) (*struct {
		Body domain.Initiative `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.UpdateInitiative(ctx, u, input.ID, input.Body)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Initiative `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-initiative",
		Method:        http.MethodDelete,
		Path:          "/initiatives/{id}",
		Summary:       "Delete initiative",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*struct{}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteInitiative(ctx, u, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "initiative-progress",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/progress",
		Summary:     "Workflow progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*struct {
		Body engine.Progress `json:"body"`
	}, error) {
		p, err := e.Progress(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.Progress `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "initiative-current-stage",
		Method:      http.MethodGet,
		Path:        "/initiatives/{id}/current-stage",
		Summary:     "Next pending workflow stage",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*struct {
		Body domain.WorkflowTransaction `json:"body"`
	}, error) {
		t, err := e.CurrentStage(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.WorkflowTransaction `json:"body"`
		}{Body: t}, nil
	})
}
