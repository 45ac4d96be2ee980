package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mscno/safereport/pkg/client"
)

type SubmitCmd struct {
	Title       string   `required:"" help:"Short incident title."`
	Description string   `required:"" help:"What happened."`
	Location    string   `required:"" help:"Where it happened."`
	OccurredAt  string   `help:"When it happened, RFC 3339. Defaults to now."`
	Phone       string   `help:"Contact phone. Only shown to organizations if you consent."`
	Emergency   bool     `help:"Mark the report as an emergency."`
	Consent     bool     `help:"Share the report with verified support organizations."`
	Evidence    []string `type:"existingfile" short:"e" help:"Attachment to upload. Repeatable."`
}

func (c *SubmitCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, false)
	if err != nil {
		return err
	}

	req := client.SubmitRequest{
		IncidentTitle:  c.Title,
		Description:    c.Description,
		OccurredAt:     c.OccurredAt,
		Location:       c.Location,
		ContactPhone:   c.Phone,
		ConsentToShare: c.Consent,
	}
	if req.OccurredAt == "" {
		req.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}
	if c.Emergency {
		req.UrgencyLevel = "Emergency"
	}
	for _, path := range c.Evidence {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read evidence %s: %w", path, err)
		}
		req.Attachments = append(req.Attachments, client.Attachment{Name: filepath.Base(path), Data: data})
	}

	ctx.Logger.Info("submitting report", "attachments", len(req.Attachments))
	res, err := api.SubmitReport(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit report: %w", err)
	}
	fmt.Printf("Report submitted:\n")
	fmt.Printf("  ID:       %s\n", res.ReportID)
	fmt.Printf("  Type:     %s\n", res.IncidentType)
	fmt.Printf("  Urgency:  %s\n", res.UrgencyLevel)
	fmt.Printf("  Status:   %s\n", res.Status)
	return nil
}
