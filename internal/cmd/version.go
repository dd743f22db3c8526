package cmd

import (
	"github.com/dostenterprises/socketlink/pkg/output"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show socketlink version",
	Run: func(cmd *cobra.Command, args []string) {
		output.Println("socketlink v" + Version)
	},
}
