package main

import (
	"fmt"
	"os"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/report"

	"github.com/spf13/cobra"
)

var (
	profilesTop int
	profilesCSV string
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Rebuild contact profiles from the stored scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), llmNone)
		if err != nil {
			return err
		}
		defer a.close()

		profiles, err := a.sentinel.RebuildProfiles(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		ok(out, "%d profiles built", len(profiles))
		for i, p := range profiles {
			if i == profilesTop {
				fmt.Fprintf(out, "  ... %d more\n", len(profiles)-profilesTop)
				break
			}
			fmt.Fprintf(out, "  %-8s %6.1f  %-14s %s\n", riskColor(p.RiskLabel), p.RiskScore, p.EscalationTrend, p.PhoneNumber)
		}

		if profilesCSV != "" {
			f, err := os.Create(profilesCSV)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := report.WriteContactsCSV(f, profiles); err != nil {
				return err
			}
			ok(out, "Profiles written to %s", profilesCSV)
		}
		return nil
	},
}

func init() {
	profilesCmd.Flags().IntVar(&profilesTop, "top", 20, "number of profiles to print")
	profilesCmd.Flags().StringVar(&profilesCSV, "csv", "", "also write the profiles to this CSV file")
	rootCmd.AddCommand(profilesCmd)
}
