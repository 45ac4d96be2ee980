package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mscno/safereport/server/model"
)

// ReportsCmd is the parent command for inbox operations.
type ReportsCmd struct {
	List   ReportsListCmd   `cmd:"" help:"List reports routed to your organization."`
	Get    ReportsGetCmd    `cmd:"" help:"Show a report."`
	Status ReportsStatusCmd `cmd:"" help:"Move a report to its next status."`
}

type ReportsListCmd struct {
	Status string `help:"Only show reports in this status."`
}

func (c *ReportsListCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, true)
	if err != nil {
		return err
	}
	reports, err := api.ListReports(ctx, c.Status)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	if len(reports) == 0 {
		fmt.Println("No reports found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tURGENCY\tSTATUS\tSUBMITTED\tTITLE")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.IncidentType, r.UrgencyLevel, r.Status, r.CreatedAt.Format(time.DateTime), r.IncidentTitle)
	}
	w.Flush()
	return nil
}

type ReportsGetCmd struct {
	ID string `arg:"" help:"Report id."`
}

func (c *ReportsGetCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, true)
	if err != nil {
		return err
	}
	report, err := api.GetReport(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to get report: %w", err)
	}
	printReport(report)
	return nil
}

type ReportsStatusCmd struct {
	ID     string `arg:"" help:"Report id."`
	Status string `arg:"" enum:"under_review,action_taken,resolved,archived" help:"New status."`
}

func (c *ReportsStatusCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, true)
	if err != nil {
		return err
	}
	ctx.Logger.Info("updating report status", "id", c.ID, "status", c.Status)
	report, err := api.UpdateReportStatus(ctx, c.ID, c.Status)
	if err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}
	fmt.Printf("Report %s is now %s\n", report.ID, report.Status)
	return nil
}

func printReport(r model.Report) {
	fmt.Printf("  ID:          %s\n", r.ID)
	fmt.Printf("  Title:       %s\n", r.IncidentTitle)
	fmt.Printf("  Type:        %s\n", r.IncidentType)
	fmt.Printf("  Urgency:     %s\n", r.UrgencyLevel)
	fmt.Printf("  Status:      %s\n", r.Status)
	fmt.Printf("  Occurred:    %s\n", r.OccurredAt.Format(time.RFC3339))
	fmt.Printf("  Location:    %s\n", r.Location)
	if r.ContactPhone != "" {
		fmt.Printf("  Phone:       %s\n", r.ContactPhone)
	}
	fmt.Printf("  Description: %s\n", r.Description)
	for _, loc := range r.EvidenceLocators {
		fmt.Printf("  Evidence:    %s\n", loc.URL)
	}
	for _, h := range r.StatusHistory {
		fmt.Printf("  History:     %s -> %s by %s at %s\n", h.From, h.To, h.ActorID, h.At.Format(time.RFC3339))
	}
}
