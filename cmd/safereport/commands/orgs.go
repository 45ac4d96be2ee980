package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mscno/safereport/pkg/client"
	"github.com/mscno/safereport/server/model"
)

// OrgsCmd is the parent command for organization operations.
type OrgsCmd struct {
	Find     OrgsFindCmd     `cmd:"" help:"List verified organizations supporting an incident type."`
	Match    OrgsMatchCmd    `cmd:"" help:"List organizations matched to a consented report."`
	Me       OrgsMeCmd       `cmd:"" help:"Show your organization profile."`
	Register OrgsRegisterCmd `cmd:"" help:"Create or update your organization profile."`
	List     OrgsListCmd     `cmd:"" help:"List every organization profile (admin)."`
	Review   OrgsReviewCmd   `cmd:"" help:"Verify or rate an organization (admin)."`
}

type OrgsFindCmd struct {
	IncidentType string `arg:"" help:"Incident type, e.g. domestic_violence."`
}

func (c *OrgsFindCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, false)
	if err != nil {
		return err
	}
	profiles, err := api.FindOrganizations(ctx, c.IncidentType)
	if err != nil {
		return fmt.Errorf("failed to find organizations: %w", err)
	}
	printProfiles(profiles)
	return nil
}

type OrgsMatchCmd struct {
	ReportID string `arg:"" help:"Report id returned by submit."`
}

func (c *OrgsMatchCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, false)
	if err != nil {
		return err
	}
	profiles, err := api.MatchReport(ctx, c.ReportID)
	if err != nil {
		return fmt.Errorf("failed to match report: %w", err)
	}
	printProfiles(profiles)
	return nil
}

type OrgsMeCmd struct{}

func (c *OrgsMeCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, true)
	if err != nil {
		return err
	}
	profile, err := api.GetOwnProfile(ctx)
	if err != nil {
		return fmt.Errorf("failed to get profile: %w", err)
	}
	printProfile(profile)
	return nil
}

type OrgsRegisterCmd struct {
	Name          string   `required:"" help:"Organization name."`
	Description   string   `required:"" help:"What the organization does."`
	Phone         string   `required:"" help:"Public phone number."`
	Address       string   `required:"" help:"Street address."`
	ContactPerson string   `required:"" help:"Contact person."`
	Types         []string `required:"" name:"type" help:"Supported incident type. Repeatable."`
	Services      []string `name:"service" help:"Offered service. Repeatable."`
}

func (c *OrgsRegisterCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, true)
	if err != nil {
		return err
	}
	profile, err := api.PutOwnProfile(ctx, client.ProfileRequest{
		Name:                   c.Name,
		Description:            c.Description,
		Phone:                  c.Phone,
		Address:                c.Address,
		ContactPerson:          c.ContactPerson,
		SupportedIncidentTypes: c.Types,
		Services:               c.Services,
	})
	if err != nil {
		return fmt.Errorf("failed to register profile: %w", err)
	}
	fmt.Println("Profile saved:")
	printProfile(profile)
	if !profile.Verified {
		fmt.Println("The profile is awaiting verification by an administrator.")
	}
	return nil
}

type OrgsListCmd struct{}

func (c *OrgsListCmd) Run(ctx *cliCtx) error {
	api, err := setupClient(ctx, true)
	if err != nil {
		return err
	}
	profiles, err := api.ListAllOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list organizations: %w", err)
	}
	printProfiles(profiles)
	return nil
}

type OrgsReviewCmd struct {
	ID       string   `arg:"" help:"Organization id."`
	Verified *bool    `help:"Set the verified flag."`
	Rating   *float64 `help:"Set the rating, 0 to 5."`
}

func (c *OrgsReviewCmd) Run(ctx *cliCtx) error {
	if c.Verified == nil && c.Rating == nil {
		return errors.New("nothing to change: pass --verified or --rating")
	}
	api, err := setupClient(ctx, true)
	if err != nil {
		return err
	}
	profile, err := api.ReviewOrganization(ctx, c.ID, client.ReviewRequest{Verified: c.Verified, Rating: c.Rating})
	if err != nil {
		return fmt.Errorf("failed to review organization: %w", err)
	}
	printProfile(profile)
	return nil
}

func printProfiles(profiles []model.OrganizationProfile) {
	if len(profiles) == 0 {
		fmt.Println("No organizations found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHONE\tRATING\tVERIFIED\tTYPES")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%t\t%s\n", p.OrganizationID, p.Name, p.Phone, p.Rating, p.Verified, joinCategories(p))
	}
	w.Flush()
}

func printProfile(p model.OrganizationProfile) {
	fmt.Printf("  ID:       %s\n", p.OrganizationID)
	fmt.Printf("  Name:     %s\n", p.Name)
	fmt.Printf("  Phone:    %s\n", p.Phone)
	fmt.Printf("  Address:  %s\n", p.Address)
	fmt.Printf("  Contact:  %s\n", p.ContactPerson)
	fmt.Printf("  Types:    %s\n", joinCategories(p))
	if len(p.Services) > 0 {
		fmt.Printf("  Services: %s\n", strings.Join(p.Services, ", "))
	}
	fmt.Printf("  Verified: %t\n", p.Verified)
	fmt.Printf("  Rating:   %.1f\n", p.Rating)
}

func joinCategories(p model.OrganizationProfile) string {
	parts := make([]string, len(p.SupportedIncidentTypes))
	for i, c := range p.SupportedIncidentTypes {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}
