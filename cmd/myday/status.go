package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/magicmac/myday/internal/config"
	"github.com/magicmac/myday/internal/repository"
	"github.com/magicmac/myday/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show session, cache and daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		a := openApp(appOptions{})
		defer a.close()
		ctx := context.Background()

		fmt.Printf("\n%s\n", ui.RenderTitle("myday status"))
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("   Config:   %s\n", path)
		} else {
			fmt.Printf("   Config:   %s %s\n", path, ui.RenderMuted("(not found, using defaults and environment)"))
		}
		fmt.Printf("   Backend:  %s\n", a.cfg.Supabase.URL)

		session, err := a.repo.Session(ctx)
		switch {
		case err == nil:
			fmt.Printf("   Account:  %s %s\n", session.Email, ui.RenderPass("✓"))
		case errors.Is(err, repository.ErrNotSignedIn):
			fmt.Printf("   Account:  %s\n", ui.RenderWarn("not signed in (run 'myday login')"))
		default:
			fmt.Printf("   Account:  %s\n", ui.RenderFail(err.Error()))
		}

		entries := a.mirror.GetEntries()
		done := 0
		for _, e := range entries {
			if e.Completed {
				done++
			}
		}
		fmt.Printf("   Mirror:   %s (%d/%d completed)\n", a.mirror.Path(), done, len(entries))

		if count, err := a.db.GetTaskCount(ctx); err == nil {
			fmt.Printf("   History:  %s (%d tasks)\n", a.db.Path(), count)
		}

		addr := net.JoinHostPort(a.cfg.Widget.Host, strconv.Itoa(a.cfg.Widget.Port))
		if clients, ok := probeWidget(addr); ok {
			fmt.Printf("   Daemon:   %s on %s (%d widgets)\n", ui.RenderPass("running"), addr, clients)
		} else {
			fmt.Printf("   Daemon:   %s\n", ui.RenderMuted("not running (start with 'myday watch')"))
		}
		fmt.Println()
	},
}

// probeWidget asks a running watch daemon for its health.
func probeWidget(addr string) (int, bool) {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status != "ok" {
		return 0, false
	}
	return health.Clients, true
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
