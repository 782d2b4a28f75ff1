package main

import (
	"fmt"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/llm"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available at each configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
		if err != nil {
			return err
		}
		defer log.Sync()

		out := cmd.OutOrStdout()
		if len(cfg.Providers) == 0 {
			fmt.Fprintln(out, yellow("No providers configured."))
			return nil
		}

		for i, pc := range cfg.Providers {
			fmt.Fprintf(out, "\n%s %s (%s)\n", bold(fmt.Sprintf("[%d]", i)), pc.Type, pc.ModelName)

			provider, err := llm.NewProvider(cmd.Context(), pc, log)
			if err != nil {
				fmt.Fprintf(out, "  %s %v\n", red("✗"), err)
				continue
			}
			available := provider.IsAvailable(cmd.Context())
			names, err := provider.ListModels(cmd.Context())
			provider.Close()
			if err != nil {
				log.Debug("List models failed", zap.Int("provider", i), zap.Error(err))
				fmt.Fprintf(out, "  %s cannot list models: %v\n", yellow("!"), err)
				continue
			}

			if available {
				ok(out, "configured model is available")
			} else if pc.Type == llm.ProviderOllama || pc.Type == "" {
				fmt.Fprintf(out, "  %s configured model not found, run: ollama pull %s\n", yellow("!"), pc.ModelName)
			} else {
				fmt.Fprintf(out, "  %s configured model not found\n", yellow("!"))
			}
			for _, name := range names {
				fmt.Fprintf(out, "    • %s\n", name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
