package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dostenterprises/socketlink/pkg/config"
	"github.com/dostenterprises/socketlink/pkg/output"
	"github.com/dostenterprises/socketlink/pkg/probe"
	"github.com/dostenterprises/socketlink/pkg/serverconfig"
	"github.com/spf13/cobra"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Show the compiled-in server endpoints",
	Long:  "List the primary server, the ordered fallback list and the polling preference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printEndpoints(serverconfig.Default())
	},
}

var endpointsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every endpoint for an engine.io handshake",
	Long:  "Probe every fallback endpoint concurrently and report which servers answer. Nothing is selected from the results.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout := time.Duration(config.GetInt("probe.timeout")) * time.Second
		results := probe.New(timeout).CheckAll(cmd.Context(), serverconfig.FallbackURLs())
		return printProbeResults(results)
	},
}

func printEndpoints(ep serverconfig.Endpoints) error {
	if output.GetOutputFormat() == output.FormatJSON {
		return output.PrintRecord("", map[string]interface{}{
			"primary_url":    ep.PrimaryURL,
			"fallback_urls":  ep.FallbackURLs,
			"prefer_polling": ep.PreferPolling,
		})
	}

	rows := make([][]string, 0, len(ep.FallbackURLs))
	for i, u := range ep.FallbackURLs {
		primary := ""
		if u == ep.PrimaryURL {
			primary = "yes"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), u, primary})
	}
	if err := output.PrintList("Endpoints", nil, []string{"#", "URL", "PRIMARY"}, rows); err != nil {
		return err
	}
	output.Println()
	output.Println("Prefer polling:", ep.PreferPolling)
	return nil
}

func printProbeResults(results []probe.Result) error {
	rows := make([][]string, 0, len(results))
	reachable := 0
	for _, r := range results {
		status := "down"
		detail := r.Error
		if r.Reachable {
			reachable++
			status = "up"
			detail = fmt.Sprintf("sid=%s upgrades=%s", r.SID, strings.Join(r.Upgrades, ","))
		}
		rows = append(rows, []string{r.URL, status, r.Latency.Round(time.Millisecond).String(), detail})
	}

	if err := output.PrintList("Endpoint check", results, []string{"URL", "STATUS", "LATENCY", "DETAIL"}, rows); err != nil {
		return err
	}
	if output.GetOutputFormat() == output.FormatJSON {
		return nil
	}

	if reachable == 0 {
		output.PrintWarning("no endpoint answered")
	} else {
		output.PrintSuccess("%d of %d endpoints reachable", reachable, len(results))
	}
	return nil
}

func init() {
	endpointsCmd.AddCommand(endpointsCheckCmd)
}
