// Package policy contains the row-level permission predicates. Each predicate
// is a pure function of the acting user and the record; callers evaluate them
// on every request.
package policy

import (
	"strings"

	"opexhub/internal/domain"
)

// Role codes with built-in meaning.
const (
	RoleSiteLead       = "STLD"
	RoleSiteHead       = "SH"
	RoleEngHead        = "EH"
	RoleInitiativeLead = "IL"
	RoleCorpTSD        = "CTSD"
	RoleFinance        = "FA"
	RoleAdmin          = "ADMIN"
)

func sameEmail(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func IsAdmin(u domain.User) bool { return u.Role == RoleAdmin }

// HasPermission reports whether perm appears in perms.
func HasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// CanCreateInitiative gates the initiative form to a single role.
func CanCreateInitiative(u domain.User, creatorRole string) bool {
	return u.Role == creatorRole
}

// CanProcessStage: the stage is pending, the user holds the required role and,
// when the stage is assigned, is the assignee. Admins may process any pending stage.
func CanProcessStage(u domain.User, tx domain.WorkflowTransaction) bool {
	if tx.ApproveStatus != domain.StagePending {
		return false
	}
	if IsAdmin(u) {
		return true
	}
	if u.Role != tx.RequiredRole {
		return false
	}
	if tx.AssignedUserEmail == nil || *tx.AssignedUserEmail == "" {
		return true
	}
	return AssignedTo(u, tx)
}

// AssignedTo reports whether the transaction is assigned to the user.
func AssignedTo(u domain.User, tx domain.WorkflowTransaction) bool {
	return tx.AssignedUserEmail != nil && sameEmail(u.Email, *tx.AssignedUserEmail)
}

func CanCreateMonitoring(u domain.User) bool {
	return u.Role == RoleSiteLead || IsAdmin(u)
}

func CanEditMonitoring(u domain.User, e domain.MonitoringEntry) bool {
	return (u.Role == RoleSiteLead && sameEmail(u.Email, e.EnteredBy)) ||
		u.Role == RoleFinance ||
		IsAdmin(u)
}

func CanFinalizeMonitoring(u domain.User, e domain.MonitoringEntry) bool {
	return (u.Role == RoleSiteLead && sameEmail(u.Email, e.EnteredBy)) || IsAdmin(u)
}

func CanApproveMonitoring(u domain.User) bool {
	return u.Role == RoleFinance || IsAdmin(u)
}

// CanManageTimeline covers create, edit and delete of timeline entries of an
// initiative led by leadEmail.
func CanManageTimeline(u domain.User, leadEmail string) bool {
	return sameEmail(u.Email, leadEmail) || u.Role == RoleInitiativeLead || IsAdmin(u)
}

func CanApproveSiteLead(u domain.User) bool {
	return u.Role == RoleSiteLead || IsAdmin(u)
}

func CanApproveInitiativeLead(u domain.User, leadEmail string) bool {
	return CanManageTimeline(u, leadEmail)
}
