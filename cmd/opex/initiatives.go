package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opexhub/internal/domain"
	"opexhub/internal/engine"
	"opexhub/internal/forms"
	"opexhub/internal/listing"
	"opexhub/internal/repo"
)

func initiativeCmd() *cobra.Command {
	in := &cobra.Command{
		Use:     "initiative",
		Aliases: []string{"in"},
		Short:   "Manage initiatives",
	}
	in.AddCommand(initiativeListCmd())
	in.AddCommand(initiativeCreateCmd())
	in.AddCommand(initiativeShowCmd())
	in.AddCommand(initiativeDeleteCmd())
	return in
}

func initiativeListCmd() *cobra.Command {
	var f repo.InitiativeFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List initiatives, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ListInitiatives(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				printInitiatives(page.Content)
				fmt.Printf("page %d of %d (%d initiatives)\n", page.Page, page.TotalPages, page.TotalElements)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (substring)")
	cmd.Flags().StringVar(&f.Site, "site", "", "site filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "search title or number")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.Size, "size", 10, "page size")
	return cmd
}

func initiativeCreateCmd() *cobra.Command {
	var form forms.InitiativeForm
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new initiative",
		Long:  "Creates an initiative as the --as user and opens stage 2 of its workflow. CAPEX is in lakh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if form.InitiatorName == "" {
					form.InitiatorName = u.FullName
				}
				if form.Site == "" {
					form.Site = u.Site
				}
				in, err := e.CreateInitiative(ctx, u, form)
				if err != nil {
					return err
				}
				return printInitiative(in)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&form.Title, "title", "", "title")
	flags.StringVar(&form.InitiatorName, "initiator", "", "initiator name (defaults to the acting user)")
	flags.StringVar(&form.Site, "site", "", "site code (defaults to the acting user's)")
	flags.StringVar(&form.Discipline, "discipline", "", "discipline code")
	flags.StringVar(&form.Date, "date", "", "start date YYYY-MM-DD")
	flags.StringVar(&form.Description, "description", "", "description")
	flags.StringVar(&form.BaselineData, "baseline", "", "baseline data")
	flags.StringVar(&form.TargetOutcome, "target-outcome", "", "target outcome")
	flags.Float64Var(&form.TargetValue, "target-value", 0, "target value")
	flags.Float64Var(&form.ExpectedValue, "expected-value", 0, "expected savings")
	flags.IntVar(&form.ConfidenceLevel, "confidence", 0, "confidence level 1-100")
	flags.Float64Var(&form.EstimatedCapex, "capex", 0, "estimated CAPEX")
	flags.BoolVar(&form.Budgeted, "budgeted", false, "budgeted initiative")
	flags.StringVar(&form.Priority, "priority", "", "High, Medium or Low")
	flags.StringVar(&form.Assumption1, "assumption1", "", "first assumption")
	flags.StringVar(&form.Assumption2, "assumption2", "", "second assumption")
	flags.StringVar(&form.Assumption3, "assumption3", "", "third assumption")
	return cmd
}

func initiativeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an initiative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.GetInitiative(ctx, args[0])
				if err != nil {
					return err
				}
				return printInitiative(in)
			})
		},
	}
}

func initiativeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an initiative and its workflow and tracking entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if err := e.DeleteInitiative(ctx, u, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func printInitiatives(items []domain.Initiative) {
	tw := newTable(table.Row{"Number", "Title", "Site", "Status", "Stage", "Progress", "CAPEX", "MOC", "ID"})
	for _, in := range items {
		tw.AppendRow(table.Row{
			in.InitiativeNumber, in.Title, in.Site, in.Status, in.CurrentStage,
			fmt.Sprintf("%d%%", in.ProgressPercentage), in.EstimatedCapex, yesNo(in.RequiresMoc), in.ID,
		})
	}
	tw.Render()
}

func printInitiative(in domain.Initiative) error {
	if viper.GetBool("json") {
		return printJSON(in)
	}
	tw := newTable(table.Row{"Field", "Value"})
	lead := ""
	if in.InitiativeLeadEmail != nil {
		lead = *in.InitiativeLeadEmail
	}
	for _, row := range []table.Row{
		{"ID", in.ID},
		{"Number", in.InitiativeNumber},
		{"Title", in.Title},
		{"Site / Discipline", in.Site + " / " + in.Discipline},
		{"Status", in.Status},
		{"Stage", in.CurrentStage},
		{"Progress", fmt.Sprintf("%d%%", in.ProgressPercentage)},
		{"Dates", in.StartDate + " .. " + in.EndDate},
		{"Expected savings", in.ExpectedSavings},
		{"Estimated CAPEX", in.EstimatedCapex},
		{"Requires MOC / CAPEX", yesNo(in.RequiresMoc) + " / " + yesNo(in.RequiresCapex)},
		{"Initiative lead", lead},
	} {
		tw.AppendRow(row)
	}
	tw.Render()
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{Use: "workflow", Short: "Inspect and process workflow stages"}
	wf.AddCommand(workflowShowCmd())
	wf.AddCommand(workflowPendingCmd())
	wf.AddCommand(workflowProcessCmd())
	wf.AddCommand(workflowAssignCmd())
	return wf
}

var (
	badgeBase     = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("231"))
	badgeApproved = badgeBase.Background(lipgloss.Color("28"))
	badgeRejected = badgeBase.Background(lipgloss.Color("160"))
	badgePending  = badgeBase.Background(lipgloss.Color("172"))
	badgeUpcoming = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("244"))
	stageTitle    = lipgloss.NewStyle().Bold(true)
	stageMuted    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func stageBadge(status string) string {
	switch status {
	case domain.StageApproved:
		return badgeApproved.Render("APPROVED")
	case domain.StageRejected:
		return badgeRejected.Render("REJECTED")
	case domain.StagePending:
		return badgePending.Render("PENDING")
	}
	return badgeUpcoming.Render("UPCOMING")
}

func workflowShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <initiative-id>",
		Short: "Show every stage of an initiative's workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.GetInitiative(ctx, args[0])
				if err != nil {
					return err
				}
				txs, err := e.Transactions(ctx, in.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(txs)
				}
				byStage := make(map[int]domain.WorkflowTransaction, len(txs))
				for _, t := range txs {
					byStage[t.StageNumber] = t
				}
				fmt.Println(stageTitle.Render(in.InitiativeNumber+"  "+in.Title), stageMuted.Render(fmt.Sprintf("%s, %d%%", in.Status, in.ProgressPercentage)))
				for _, st := range e.Config.Workflow.Stages {
					t, ok := byStage[st.Number]
					status := ""
					detail := stageMuted.Render(st.Role)
					if ok {
						status = t.ApproveStatus
						var parts []string
						if t.AssignedUserEmail != nil {
							parts = append(parts, "assigned "+*t.AssignedUserEmail)
						}
						if t.ActionBy != nil {
							parts = append(parts, "by "+*t.ActionBy)
						}
						if t.Comment != nil {
							parts = append(parts, fmt.Sprintf("%q", *t.Comment))
						}
						if len(parts) > 0 {
							detail = stageMuted.Render(st.Role + ", " + strings.Join(parts, ", "))
						}
					}
					fmt.Printf("%2d %s %s %s\n", st.Number, stageBadge(status), st.Name, detail)
				}
				return nil
			})
		},
	}
}

func workflowPendingCmd() *cobra.Command {
	var role, site string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending stages for a role (defaults to the acting user's)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if role == "" {
					role = u.Role
				}
				txs, err := e.PendingStages(ctx, role, site)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(txs)
				}
				tw := newTable(table.Row{"Transaction", "Initiative", "Stage", "Site", "Assigned"})
				for _, t := range txs {
					assigned := ""
					if t.AssignedUserEmail != nil {
						assigned = *t.AssignedUserEmail
					}
					tw.AppendRow(table.Row{t.ID, t.InitiativeID, fmt.Sprintf("%d %s", t.StageNumber, t.StageName), t.Site, assigned})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "required role")
	cmd.Flags().StringVar(&site, "site", "", "site filter")
	return cmd
}

func workflowProcessCmd() *cobra.Command {
	var opts engine.ProcessOptions
	cmd := &cobra.Command{
		Use:   "process <transaction-id> approved|rejected",
		Short: "Approve or reject a pending stage as the acting user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TransactionID, opts.Action = args[0], args[1]
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				res, err := e.ProcessStage(ctx, u, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("stage %d %s; initiative %s is %s (%d%%)\n",
					res.Transaction.StageNumber, res.Transaction.ApproveStatus,
					res.Initiative.InitiativeNumber, res.Initiative.Status, res.Initiative.ProgressPercentage)
				if res.Next != nil {
					fmt.Printf("next: stage %d %s (%s)\n", res.Next.StageNumber, res.Next.StageName, res.Next.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment")
	cmd.Flags().StringVar(&opts.InitiativeLeadEmail, "lead", "", "initiative lead email (lead assignment stage)")
	return cmd
}

func workflowAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <transaction-id> <email>",
		Short: "Reassign a pending stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				t, err := e.ReassignStage(ctx, u, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("stage %d assigned to %s\n", t.StageNumber, *t.AssignedUserEmail)
				return nil
			})
		},
	}
}

// eligibleFlags binds the listing filter shared by monitoring and timeline.
func eligibleFlags(cmd *cobra.Command, f *listing.Filter, page *int) {
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (substring)")
	cmd.Flags().StringVar(&f.Site, "site", "", "site filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "search title or number")
	cmd.Flags().IntVar(page, "page", 1, "page number")
}
