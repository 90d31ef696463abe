package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

var toolsBridgeURL string

// toolsCmd lists the tools a running bridge currently exposes.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools a running bridge exposes",
	Long: `Queries a running plugin bridge over its REST surface and prints the
registered tools together with the fingerprint of the current tool set.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(toolsBridgeURL + "/bridge/v1/tools")
	if err != nil {
		return fmt.Errorf("failed to reach bridge at %s: %w", toolsBridgeURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge at %s answered %d", toolsBridgeURL, resp.StatusCode)
	}

	var listing struct {
		Tools []mcp.Tool `json:"tools"`
		Hash  string     `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("failed to decode bridge response: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(listing.Tools) == 0 {
		fmt.Fprintf(out, "%s\n", text.FgYellow.Sprint("No tools registered"))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("NAME"),
		text.FgHiCyan.Sprint("DESCRIPTION"),
	})
	for _, tool := range listing.Tools {
		description := tool.Description
		if len(description) > 80 {
			description = description[:77] + "..."
		}
		t.AppendRow(table.Row{tool.Name, description})
	}
	t.Render()

	fmt.Fprintf(out, "Tool set fingerprint: %s\n", listing.Hash)
	return nil
}

func init() {
	toolsCmd.Flags().StringVar(&toolsBridgeURL, "url", "http://127.0.0.1:27123", "Base URL of the running bridge")
	rootCmd.AddCommand(toolsCmd)
}
