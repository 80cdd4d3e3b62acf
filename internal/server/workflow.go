package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"opexhub/internal/domain"
	"opexhub/internal/engine"
)

func registerWorkflow(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/workflow/initiatives/{id}/transactions",
		Summary:     "Workflow transactions of an initiative in stage order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *initiativePath) (*struct {
		Body []domain.WorkflowTransaction `json:"body"`
	}, error) {
		txs, err := e.Transactions(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.WorkflowTransaction `json:"body"`
		}{Body: txs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-by-role",
		Method:      http.MethodGet,
		Path:        "/workflow/pending",
		Summary:     "Pending stages for a role across sites",
		Description: "role defaults to the caller's role.",
	}, func(ctx context.Context, input *struct {
		Role string `query:"role"`
	}) (*struct {
		Body []domain.WorkflowTransaction `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		role := input.Role
		if role == "" {
			role = u.Role
		}
		txs, err := e.PendingStages(ctx, role, "")
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.WorkflowTransaction `json:"body"`
		}{Body: nonNilSlice(txs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-by-site-role",
		Method:      http.MethodGet,
		Path:        "/workflow/pending/sites/{site}/roles/{role}",
		Summary:     "Pending stages for a site and role",
	}, func(ctx context.Context, input *struct {
		Site string `path:"site"`
		Role string `path:"role"`
	}) (*struct {
		Body []domain.WorkflowTransaction `json:"body"`
	}, error) {
		txs, err := e.PendingStages(ctx, input.Role, input.Site)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.WorkflowTransaction `json:"body"`
		}{Body: nonNilSlice(txs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-stage",
		Method:      http.MethodPost,
		Path:        "/workflow/transactions/{id}/process",
		Summary:     "Approve or reject a pending stage",
		Description: "Approving the lead assignment stage requires initiative_lead_email of a registered initiative lead.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ProcessStageRequest `json:"body"`
	}) (*struct {
		Body engine.ProcessResult `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ProcessStage(ctx, u, engine.ProcessOptions{
			TransactionID:       input.ID,
			Action:              input.Body.Action,
			Comment:             input.Body.Comment,
			InitiativeLeadEmail: input.Body.InitiativeLeadEmail,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.ProcessResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-stage",
		Method:      http.MethodPut,
		Path:        "/workflow/transactions/{id}/assignee",
		Summary:     "Reassign a pending stage (admin)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AssignStageRequest `json:"body"`
	}) (*struct {
		Body domain.WorkflowTransaction `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ReassignStage(ctx, u, input.ID, input.Body.Email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.WorkflowTransaction `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-masters",
		Method:      http.MethodGet,
		Path:        "/workflow/masters",
		Summary:     "Default stage approvers",
	}, func(ctx context.Context, input *struct {
		Site string `query:"site"`
	}) (*struct {
		Body []domain.WorkflowMaster `json:"body"`
	}, error) {
		items, err := e.Repo.ListMasters(ctx, input.Site)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.WorkflowMaster `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-master",
		Method:      http.MethodPut,
		Path:        "/workflow/masters",
		Summary:     "Set the default approver of a stage at a site (admin)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body SetMasterRequest `json:"body"`
	}) (*struct {
		Body domain.WorkflowMaster `json:"body"`
	}, error) {
		u, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SetMaster(ctx, u, input.Body.Site, input.Body.StageNumber, input.Body.Email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.WorkflowMaster `json:"body"`
		}{Body: m}, nil
	})
}
