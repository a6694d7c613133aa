package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/magicmac/myday/internal/insights"
	"github.com/magicmac/myday/internal/ui"
)

const insightsTimeout = 90 * time.Second

var insightsCmd = &cobra.Command{
	Use:     "insights",
	GroupID: "tasks",
	Short:   "Get coaching feedback on the last 14 days",
	Long: `Ask the insights server for a report on the last 14 days of tasks.

The server URL comes from server.url in the config file (see 'myday serve').`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		a := openApp(appOptions{})
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), insightsTimeout)
		defer cancel()

		// Loading first refreshes an expired session.
		a.load(ctx)
		session, err := a.repo.Session(ctx)
		if err != nil {
			a.close()
			fatalf("%v", err)
		}

		fmt.Println(ui.RenderMuted("Analyzing your last 14 days..."))
		report, err := fetchInsights(ctx, http.DefaultClient, a.cfg.Server.URL, session.AccessToken)
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		if asJSON {
			printJSON(report)
			return
		}
		printSection(ui.RenderPass("What went great"), report.Great)
		printSection(ui.RenderWarn("What wasn't great"), report.NotGreat)
		printSection(ui.RenderAccent("How to improve"), report.Improve)
	},
}

// fetchInsights calls the insights endpoint. Server errors come back as
// {"error": "..."} and are returned as is.
func fetchInsights(ctx context.Context, client *http.Client, baseURL, accessToken string) (*insights.Insights, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/insights"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach insights server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return nil, errors.New(body.Error)
		}
		return nil, fmt.Errorf("insights server returned %s", resp.Status)
	}

	var report insights.Insights
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode insights: %w", err)
	}
	return &report, nil
}

func printSection(title string, items []string) {
	fmt.Printf("\n%s\n", title)
	for _, item := range items {
		fmt.Printf("  • %s\n", item)
	}
}

func init() {
	insightsCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(insightsCmd)
}
