package server

import (
	"opexhub/internal/config"
	"opexhub/internal/domain"
)

// Request payloads

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type ProcessStageRequest struct {
	Action              string `json:"action" doc:"approved or rejected"`
	Comment             string `json:"comment,omitempty"`
	InitiativeLeadEmail string `json:"initiative_lead_email,omitempty"`
}

type AssignStageRequest struct {
	Email string `json:"email"`
}

type SetMasterRequest struct {
	Site        string `json:"site"`
	StageNumber int    `json:"stage_number" minimum:"1"`
	Email       string `json:"email"`
}

type FinalizeRequest struct {
	IsFinalized bool `json:"is_finalized"`
}

type FAApprovalRequest struct {
	FAApproval bool    `json:"fa_approval"`
	FAComments *string `json:"fa_comments,omitempty"`
}

type TimelineApprovalsRequest struct {
	SiteLeadApproval       *bool `json:"site_lead_approval,omitempty"`
	InitiativeLeadApproval *bool `json:"initiative_lead_approval,omitempty"`
}

// Responses

type LookupsResponse struct {
	Sites       []config.CatalogItem `json:"sites"`
	Disciplines []config.CatalogItem `json:"disciplines"`
	Roles       []RoleResponse       `json:"roles"`
	Stages      []StageResponse      `json:"stages"`
}

type RoleResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type StageResponse struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

type MeResponse struct {
	User        domain.User `json:"user"`
	Permissions []string    `json:"permissions"`
	Source      string      `json:"source" enum:"jwt,api_key"`
}

type APIKeyResponse struct {
	domain.APIKey
	Key string `json:"key"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Conversion helpers

func lookupsResponse(cfg *config.Config) LookupsResponse {
	res := LookupsResponse{
		Sites:       nonNilSlice(cfg.Sites),
		Disciplines: nonNilSlice(cfg.Disciplines),
		Roles:       []RoleResponse{},
		Stages:      []StageResponse{},
	}
	for _, code := range cfg.RoleCodes() {
		res.Roles = append(res.Roles, RoleResponse{Code: code, Name: cfg.RoleName(code)})
	}
	for _, st := range cfg.Workflow.Stages {
		res.Stages = append(res.Stages, StageResponse{Number: st.Number, Name: st.Name, Role: st.Role})
	}
	return res
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
