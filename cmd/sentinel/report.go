package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/crypto"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/report"

	"github.com/spf13/cobra"
)

const signatureSuffix = ".sig"

var (
	reportOutput string
	reportSign   bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export the legal report with a content hash",
	Long: `Report writes the aggregate report (no message content) as JSON together
with its SHA-256 content hash. With --sign an HMAC-SHA256 signature of the
file is written next to it using report.signing_secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), llmNone)
		if err != nil {
			return err
		}
		defer a.close()

		secret := a.cfg.Report.SigningSecret
		if reportSign && secret == "" {
			return crypto.ErrSigningSecretNotSet
		}

		export, err := a.sentinel.BuildReport(cmd.Context())
		if err != nil {
			return err
		}
		data, err := export.JSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportOutput, data, 0o600); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		ok(out, "Report written to %s", reportOutput)
		fmt.Fprintf(out, "  content_hash_sha256 : %s\n", export.ContentHashSHA256)

		if reportSign {
			signature, err := crypto.Sign(data, secret)
			if err != nil {
				return err
			}
			sigPath := reportOutput + signatureSuffix
			if err := os.WriteFile(sigPath, []byte(signature+"\n"), 0o600); err != nil {
				return err
			}
			ok(out, "Signature written to %s", sigPath)
		}
		return nil
	},
}

var verifySignature string

var verifyCmd = &cobra.Command{
	Use:   "verify <report.json>",
	Short: "Check a report's content hash and signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		export, err := report.Parse(data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		valid, err := export.HashValid()
		if err != nil {
			return err
		}
		if !valid {
			return errors.New("content hash mismatch: report was modified")
		}
		ok(out, "Content hash valid")

		sigPath := verifySignature
		if sigPath == "" {
			sigPath = args[0] + signatureSuffix
			if _, err := os.Stat(sigPath); err != nil {
				fmt.Fprintln(out, yellow("  No signature file, signature not checked"))
				return nil
			}
		}
		raw, err := os.ReadFile(sigPath)
		if err != nil {
			return err
		}
		if cfg.Report.SigningSecret == "" {
			return crypto.ErrSigningSecretNotSet
		}
		if !crypto.Verify(data, strings.TrimSpace(string(raw)), cfg.Report.SigningSecret) {
			return errors.New("signature invalid")
		}
		ok(out, "Signature valid")
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "sentinel_report.json", "report file")
	reportCmd.Flags().BoolVar(&reportSign, "sign", false, "write an HMAC signature next to the report")
	verifyCmd.Flags().StringVar(&verifySignature, "signature", "", "signature file (default <report>.sig)")
	rootCmd.AddCommand(reportCmd, verifyCmd)
}
