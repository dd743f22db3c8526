package cmd

import (
	"fmt"
	"os"

	"github.com/dostenterprises/socketlink/pkg/config"
	sockerrors "github.com/dostenterprises/socketlink/pkg/errors"
	"github.com/dostenterprises/socketlink/pkg/logger"
	"github.com/dostenterprises/socketlink/pkg/output"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	outputFmt  string
)

var rootCmd = &cobra.Command{
	Use:   "socketlink",
	Short: "socketlink - socket.io connection tool for the dostenterprises servers",
	Long: `socketlink holds a single shared socket.io connection to one of the
compiled-in dostenterprises servers. Inspect the endpoint list, probe
which servers answer, and stream live events from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		logger.Init(verbose)

		if !output.ValidateOutputFormat(outputFmt) {
			return fmt.Errorf("invalid output format %q (expected text, json or table)", outputFmt)
		}
		config.Set("output.format", outputFmt)
		output.Init()
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, sockerrors.FormatError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/socketlink/config.toml)")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "text", "Output format: text, json, table")

	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(versionCmd)
}
