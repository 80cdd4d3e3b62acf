package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opexhub/internal/domain"
	"opexhub/internal/engine"
	"opexhub/internal/forms"
	"opexhub/internal/listing"
	"opexhub/internal/report"
)

func monitoringCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "monitoring",
		Short: "Monthly KPI monitoring entries",
		Long:  "Monitoring opens for an initiative once its savings monitoring stage is approved; only that stage's approver sees it in the list.",
	}
	m.AddCommand(monitoringListCmd())
	m.AddCommand(monitoringAddCmd())
	m.AddCommand(monitoringFinalizeCmd())
	m.AddCommand(monitoringApproveCmd())
	return m
}

func monitoringListCmd() *cobra.Command {
	var initiativeID, month string
	var f listing.Filter
	var page int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List eligible initiatives, or the entries of one with --initiative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if initiativeID == "" {
					return printEligible(ctx, e, u, engine.TrackingMonitoring, f, page)
				}
				items, err := e.ListMonitoring(ctx, initiativeID, month)
				if err != nil {
					return err
				}
				return printMonitoring(items)
			})
		},
	}
	cmd.Flags().StringVar(&initiativeID, "initiative", "", "initiative id")
	cmd.Flags().StringVar(&month, "month", "", "YYYY-MM month filter")
	eligibleFlags(cmd, &f, &page)
	return cmd
}

func monitoringAddCmd() *cobra.Command {
	var form forms.Monitoring
	var category, remarks string
	var target, achieved float64
	cmd := &cobra.Command{
		Use:   "add <initiative-id>",
		Short: "Record a monthly KPI entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form.Category = optionalString(category)
			form.Remarks = optionalString(remarks)
			if cmd.Flags().Changed("target") {
				form.TargetValue = &target
			}
			if cmd.Flags().Changed("achieved") {
				form.AchievedValue = &achieved
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				m, err := e.CreateMonitoring(ctx, u, args[0], form)
				if err != nil {
					return err
				}
				return printMonitoring([]domain.MonitoringEntry{m})
			})
		},
	}
	cmd.Flags().StringVar(&form.MonitoringMonth, "month", "", "YYYY-MM month")
	cmd.Flags().StringVar(&form.KPIDescription, "kpi", "", "KPI description")
	cmd.Flags().Float64Var(&target, "target", 0, "target value (required)")
	cmd.Flags().Float64Var(&achieved, "achieved", 0, "achieved value")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks")
	return cmd
}

func monitoringFinalizeCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "finalize <entry-id>",
		Short: "Finalize an entry for F&A approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				m, err := e.FinalizeMonitoring(ctx, u, args[0], !undo)
				if err != nil {
					return err
				}
				return printMonitoring([]domain.MonitoringEntry{m})
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "clear the finalized flag")
	return cmd
}

func monitoringApproveCmd() *cobra.Command {
	var reject bool
	var comments string
	cmd := &cobra.Command{
		Use:   "approve <entry-id>",
		Short: "Record the F&A approval of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				m, err := e.ApproveMonitoring(ctx, u, args[0], !reject, optionalString(comments))
				if err != nil {
					return err
				}
				return printMonitoring([]domain.MonitoringEntry{m})
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "withdraw the approval")
	cmd.Flags().StringVar(&comments, "comments", "", "F&A comments")
	return cmd
}

func printMonitoring(items []domain.MonitoringEntry) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"Month", "KPI", "Target", "Achieved", "Deviation", "Dev %", "Final", "F&A", "ID"})
	for _, m := range items {
		tw.AppendRow(table.Row{
			m.MonitoringMonth, m.KPIDescription, m.TargetValue, optFloat(m.AchievedValue),
			optFloat(m.Deviation), optFloat(m.DeviationPercentage), yesNo(m.IsFinalized), yesNo(m.FAApproval), m.ID,
		})
	}
	tw.Render()
	return nil
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func timelineCmd() *cobra.Command {
	tl := &cobra.Command{
		Use:   "timeline",
		Short: "Implementation timeline entries",
		Long:  "The timeline opens once the timeline tracker stage is approved by the initiative lead.",
	}
	tl.AddCommand(timelineListCmd())
	tl.AddCommand(timelineAddCmd())
	tl.AddCommand(timelineApproveCmd())
	return tl
}

func timelineListCmd() *cobra.Command {
	var initiativeID string
	var f listing.Filter
	var page int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List eligible initiatives, or the entries of one with --initiative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if initiativeID == "" {
					return printEligible(ctx, e, u, engine.TrackingTimeline, f, page)
				}
				items, err := e.ListTimeline(ctx, initiativeID)
				if err != nil {
					return err
				}
				return printTimeline(items)
			})
		},
	}
	cmd.Flags().StringVar(&initiativeID, "initiative", "", "initiative id")
	eligibleFlags(cmd, &f, &page)
	return cmd
}

func timelineAddCmd() *cobra.Command {
	var form forms.Timeline
	var actualStart, actualEnd, remarks string
	cmd := &cobra.Command{
		Use:   "add <initiative-id>",
		Short: "Add a timeline entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form.ActualStartDate = optionalString(actualStart)
			form.ActualEndDate = optionalString(actualEnd)
			form.Remarks = optionalString(remarks)
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				t, err := e.CreateTimeline(ctx, u, args[0], form)
				if err != nil {
					return err
				}
				return printTimeline([]domain.TimelineEntry{t})
			})
		},
	}
	cmd.Flags().StringVar(&form.StageName, "stage", "", "stage name")
	cmd.Flags().StringVar(&form.PlannedStartDate, "planned-start", "", "planned start YYYY-MM-DD")
	cmd.Flags().StringVar(&form.PlannedEndDate, "planned-end", "", "planned end YYYY-MM-DD")
	cmd.Flags().StringVar(&actualStart, "actual-start", "", "actual start YYYY-MM-DD")
	cmd.Flags().StringVar(&actualEnd, "actual-end", "", "actual end YYYY-MM-DD")
	cmd.Flags().StringVar(&form.Status, "status", "", "PENDING, IN_PROGRESS, COMPLETED or DELAYED")
	cmd.Flags().StringVar(&form.ResponsiblePerson, "responsible", "", "responsible person")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks")
	return cmd
}

func timelineApproveCmd() *cobra.Command {
	var siteLead, initiativeLead bool
	cmd := &cobra.Command{
		Use:   "approve <entry-id>",
		Short: "Set the site lead and/or initiative lead approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sl, il *bool
			if cmd.Flags().Changed("site-lead") {
				sl = &siteLead
			}
			if cmd.Flags().Changed("initiative-lead") {
				il = &initiativeLead
			}
			if sl == nil && il == nil {
				return fmt.Errorf("pass --site-lead and/or --initiative-lead")
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				t, err := e.SetTimelineApprovals(ctx, u, args[0], sl, il)
				if err != nil {
					return err
				}
				return printTimeline([]domain.TimelineEntry{t})
			})
		},
	}
	cmd.Flags().BoolVar(&siteLead, "site-lead", false, "site lead approval")
	cmd.Flags().BoolVar(&initiativeLead, "initiative-lead", false, "initiative lead approval")
	return cmd
}

func printTimeline(items []domain.TimelineEntry) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"Stage", "Planned", "Status", "Progress", "Responsible", "Site lead", "Lead", "ID"})
	for _, t := range items {
		tw.AppendRow(table.Row{
			t.StageName, t.PlannedStartDate + " .. " + t.PlannedEndDate, t.Status,
			fmt.Sprintf("%d%%", t.ProgressPercentage), t.ResponsiblePerson,
			yesNo(t.SiteLeadApproval), yesNo(t.InitiativeLeadApproval), t.ID,
		})
	}
	tw.Render()
	return nil
}

func printEligible(ctx context.Context, e engine.Engine, u domain.User, kind engine.TrackingKind, f listing.Filter, page int) error {
	res, err := e.EligibleInitiatives(ctx, u, kind, f, page)
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(res)
	}
	printInitiatives(res.Content)
	fmt.Printf("page %d of %d (%d initiatives)\n", res.Page, res.TotalPages, res.TotalElements)
	return nil
}

func reportCmd() *cobra.Command {
	r := &cobra.Command{Use: "report", Short: "Reports"}
	r.AddCommand(reportExportCmd())
	return r
}

func reportExportCmd() *cobra.Command {
	var site, format, out string
	var year int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the monthly initiative tracker for a financial year",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				tr, err := e.TrackerReport(ctx, u, engine.TrackerOptions{Site: site, FiscalYear: year})
				if err != nil {
					return err
				}
				if out == "-" {
					return tr.Render(os.Stdout, f)
				}
				path := out
				if path == "" {
					path = report.Filename(tr.GeneratedAt, f)
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				file, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := tr.Render(file, f); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Println("wrote", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site code, empty for all sites")
	cmd.Flags().IntVar(&year, "year", 0, "financial year start (e.g. 2025 for Apr 2025 - Mar 2026)")
	cmd.Flags().StringVar(&format, "format", "csv", "csv, html or markdown")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path, - for stdout")
	return cmd
}
