// Command crmctl lets operators drive the campaign engine from a shell:
// run a campaign step, refresh a segment or inspect a campaign's sends.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Santonastaso/crm-demo-sub000/internal/bootstrap"
	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

var (
	configPath string
	runStepNum int
	sendsStep  int
	asJSON     bool
)

// engine is what the subcommands need from a bootstrapped App.
type engine struct {
	campaigns interface {
		RunStep(ctx context.Context, campaignID string, step int) (*campaign.StepResult, error)
		Sends(ctx context.Context, campaignID string, stepOrder int) ([]domain.CampaignSend, error)
	}
	segments interface {
		Refresh(ctx context.Context, segmentID string) (*segment.RefreshResult, error)
	}
}

// openEngine is swapped in tests.
var openEngine = func(ctx context.Context) (*engine, func(), error) {
	cfg, err := config.Load(ctx, config.ResolvePath(configPath))
	if err != nil {
		return nil, nil, err
	}
	logFile := bootstrap.SetupLogging(cfg.Log)
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, nil, err
	}
	done := func() {
		_ = app.Close()
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	return &engine{campaigns: app.Campaigns, segments: app.Segments}, done, nil
}

var rootCmd = &cobra.Command{
	Use:           "crmctl",
	Short:         "Operate the campaign execution engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runStepCmd = &cobra.Command{
	Use:   "run-step <campaign-id>",
	Short: "Run one step of a campaign now",
	Long: `Run one step of a campaign immediately.

Re-running a step only contacts recipients who have no send for it yet.`,
	Args: cobra.ExactArgs(1),
	RunE: runStep,
}

var refreshSegmentCmd = &cobra.Command{
	Use:   "refresh-segment <segment-id>",
	Short: "Recompute a segment's membership",
	Args:  cobra.ExactArgs(1),
	RunE:  refreshSegment,
}

var sendsCmd = &cobra.Command{
	Use:   "sends <campaign-id>",
	Short: "List a campaign's sends",
	Args:  cobra.ExactArgs(1),
	RunE:  listSends,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or "+config.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	runStepCmd.Flags().IntVarP(&runStepNum, "step", "s", 1, "step number (1-5)")
	sendsCmd.Flags().IntVarP(&sendsStep, "step", "s", 0, "only this step (0 for all)")

	rootCmd.AddCommand(runStepCmd, refreshSegmentCmd, sendsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runStep(cmd *cobra.Command, args []string) error {
	if runStepNum < 1 || runStepNum > domain.MaxCampaignSteps {
		return fmt.Errorf("--step must be between 1 and %d", domain.MaxCampaignSteps)
	}
	e, done, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	res, err := e.campaigns.RunStep(cmd.Context(), args[0], runStepNum)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, res)
	}
	fmt.Fprintf(out, "campaign %s step %d/%d: %d eligible, %d sent, %d failed, %d skipped; status %s\n",
		res.CampaignID, res.StepProcessed, res.TotalSteps, res.RecipientsTotal,
		res.RecipientsSent, res.RecipientsFailed, res.RecipientsSkipped, res.Status)
	return nil
}

func refreshSegment(cmd *cobra.Command, args []string) error {
	e, done, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	res, err := e.segments.Refresh(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, res)
	}
	fmt.Fprintf(out, "segment %s: %d contacts", res.SegmentID, res.ContactCount)
	if res.Skipped > 0 {
		fmt.Fprintf(out, " (%d malformed criteria skipped)", res.Skipped)
	}
	fmt.Fprintln(out)
	return nil
}

func listSends(cmd *cobra.Command, args []string) error {
	e, done, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	rows, err := e.campaigns.Sends(cmd.Context(), args[0], sendsStep)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, rows)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tCONTACT\tCHANNEL\tSTATUS\tSENT\tERROR")
	for _, r := range rows {
		sent := "-"
		if r.SentAt != nil {
			sent = r.SentAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.StepOrder, r.ContactID, r.Channel, r.Status, sent, r.Error)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
