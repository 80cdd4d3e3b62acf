package engine

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"opexhub/internal/domain"
	"opexhub/internal/forms"
)

// DemoPassword is the password of every seeded demo account.
const DemoPassword = "password123"

// DemoUsers are the NDS accounts created by SeedDemo, one per approver seat.
var DemoUsers = []forms.Signup{
	{FullName: "Manoj Tiwari", Email: "manoj.tiwari@godeepak.com", Site: "NDS", Discipline: "OP", Role: "STLD"},
	{FullName: "Priya Sharma", Email: "priya.sharma@godeepak.com", Site: "NDS", Discipline: "OP", Role: "SH"},
	{FullName: "Amit Patel", Email: "amit.patel@godeepak.com", Site: "NDS", Discipline: "EG", Role: "EH"},
	{FullName: "Rajesh Kumar", Email: "rajesh.kumar@godeepak.com", Site: "NDS", Discipline: "EG", Role: "IL"},
	{FullName: "Vikram Gupta", Email: "vikram.gupta@godeepak.com", Site: "NDS", Discipline: "OP", Role: "STLD"},
	{FullName: "Kavya Nair", Email: "kavya.nair@godeepak.com", Site: "NDS", Discipline: "OT", Role: "CTSD"},
	{FullName: "Suresh Reddy", Email: "suresh.reddy@godeepak.com", Site: "NDS", Discipline: "OP", Role: "STLD"},
	{FullName: "Rohit Jain", Email: "rohit.jain@godeepak.com", Site: "NDS", Discipline: "OP", Role: "STLD"},
	{FullName: "Ananya Verma", Email: "ananya.verma@godeepak.com", Site: "NDS", Discipline: "QA", Role: "STLD"},
	{FullName: "Neha Singh", Email: "neha.singh@godeepak.com", Site: "NDS", Discipline: "OT", Role: "FA"},
	{FullName: "OpEx Admin", Email: "admin@godeepak.com", Site: "NDS", Discipline: "OT", Role: "ADMIN"},
}

// SyncMasters copies the configured workflow masters into the database,
// overwriting rows for the same site and stage.
func (e Engine) SyncMasters(ctx context.Context) (int, error) {
	n := 0
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		sites := make([]string, 0, len(e.Config.Workflow.Masters))
		for site := range e.Config.Workflow.Masters {
			sites = append(sites, site)
		}
		sort.Strings(sites)
		for _, site := range sites {
			for stage, email := range e.Config.Workflow.Masters[site] {
				st, ok := e.Config.Stage(stage)
				if !ok {
					continue
				}
				m := domain.WorkflowMaster{Site: site, StageNumber: stage, Role: st.Role, UserEmail: email}
				if err := e.Repo.UpsertMaster(ctx, tx, m); err != nil {
					return err
				}
				n++
			}
		}
		return nil
	})
	return n, err
}

// SeedDemo registers the demo accounts that do not exist yet and returns
// the ones it created.
func (e Engine) SeedDemo(ctx context.Context) ([]domain.User, error) {
	created := []domain.User{}
	for _, s := range DemoUsers {
		if !e.Config.HasSite(s.Site) || !e.Config.HasRole(s.Role) {
			continue
		}
		s.Password = DemoPassword
		u, err := e.Register(ctx, s)
		if errors.Is(err, ErrEmailTaken) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, u)
	}
	return created, nil
}
