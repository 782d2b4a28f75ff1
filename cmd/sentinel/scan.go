package main

import (
	"fmt"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/service"

	"github.com/spf13/cobra"
)

var (
	scanXMLDir      string
	scanKeywordOnly bool
	scanAddresses   []string
	scanRunLabel    string
	scanAsJob       bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Parse backups, detect intents and build contact profiles",
	Long: `Scan reads sms-*.xml and calls-*.xml from the backup directory, runs the
keyword pass and, unless keyword-only, LLM confirmation, then stores messages,
calls, flagged intents and contact profiles in the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := llmOptional
		if cmd.Flags().Changed("keyword-only") && scanKeywordOnly {
			mode = llmNone
		}
		a, err := newApp(ctx, mode)
		if err != nil {
			return err
		}
		defer a.close()

		req := service.ScanRequest{
			XMLDir:      a.cfg.Scan.XMLDir,
			Addresses:   scanAddresses,
			KeywordOnly: a.cfg.Scan.KeywordOnly,
			RunLabel:    scanRunLabel,
		}
		if scanXMLDir != "" {
			req.XMLDir = scanXMLDir
		}
		if cmd.Flags().Changed("keyword-only") {
			req.KeywordOnly = scanKeywordOnly
		}
		if req.RunLabel == "" {
			req.RunLabel = req.XMLDir
		}

		out := cmd.OutOrStdout()
		detection := "Keyword + LLM"
		if req.KeywordOnly || a.adapter == nil {
			detection = "Keyword-only"
		}
		fmt.Fprintf(out, "Source directory : %s\n", cyan(req.XMLDir))
		fmt.Fprintf(out, "Database         : %s\n", cyan(a.cfg.Database.Path))
		fmt.Fprintf(out, "Detection mode   : %s\n\n", cyan(detection))

		if scanAsJob {
			job, err := a.sentinel.StartScanJob(ctx, req)
			if err != nil {
				return err
			}
			step(out, "Scan job %s queued", job.ID)
			a.sentinel.Wait()
			done, err := a.sentinel.GetJob(ctx, job.ID)
			if err != nil {
				return err
			}
			if done.Status == models.JobFailed {
				return fmt.Errorf("scan job %s failed: %s", done.ID, done.ErrorMessage)
			}
			ok(out, "Job %s %s: %d messages, %d flags", done.ID, done.Status, done.MessagesParsed, done.IntentsFlagged)
			return nil
		}

		step(out, "Running intent analysis...")
		summary, err := a.sentinel.Scan(ctx, req, func(current, total int, label string) {
			progressBar(out, current, total, label)
		})
		if err != nil {
			return err
		}
		ok(out, "Scan finished in %s", elapsed(summary.Elapsed))

		fmt.Fprintf(out, "\n%s\n", bold(green("✓ Complete")))
		fmt.Fprintf(out, "  Messages   : %d\n", summary.MessagesParsed)
		fmt.Fprintf(out, "  Calls      : %d\n", summary.CallsParsed)
		fmt.Fprintf(out, "  Flags      : %d\n", summary.IntentsFlagged)
		fmt.Fprintf(out, "  Contacts   : %d (%s high risk)\n", summary.ContactsProfiled, red(summary.HighRiskContacts))

		if summary.IntentsFlagged > 0 {
			fmt.Fprintln(out, "\n  Severity breakdown:")
			fmt.Fprintf(out, "    %s   : %d\n", red(models.SeverityHigh), summary.Severities[models.SeverityHigh])
			fmt.Fprintf(out, "    %s : %d\n", yellow(models.SeverityMedium), summary.Severities[models.SeverityMedium])
			fmt.Fprintf(out, "    %s    : %d\n", green(models.SeverityLow), summary.Severities[models.SeverityLow])
		}

		fmt.Fprintf(out, "\n%s\n", yellow(legalNote))
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanXMLDir, "xml-dir", "d", "", "directory holding sms-*.xml and calls-*.xml (overrides scan.xml_dir)")
	scanCmd.Flags().BoolVarP(&scanKeywordOnly, "keyword-only", "k", false, "skip LLM confirmation")
	scanCmd.Flags().StringSliceVar(&scanAddresses, "address", nil, "only keep records for these phone numbers")
	scanCmd.Flags().StringVar(&scanRunLabel, "run-label", "", "label stored with this run (defaults to the directory)")
	scanCmd.Flags().BoolVar(&scanAsJob, "job", false, "record the scan as a tracked job")
	rootCmd.AddCommand(scanCmd)
}
