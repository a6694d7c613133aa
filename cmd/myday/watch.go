package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magicmac/myday/internal/daemon"
	"github.com/magicmac/myday/internal/mirror"
	"github.com/magicmac/myday/internal/realtime"
	"github.com/magicmac/myday/internal/widget"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Keep the widget mirror in sync in the foreground",
	Long: `Run the sync daemon in the foreground.

The daemon:
  - subscribes to backend changes and reloads after each burst of changes
  - reloads when a widget edits the mirror file directly
  - starts a fresh list shortly after local midnight
  - serves the mirror snapshot to widgets over WebSocket

Widget endpoints:
  ws://127.0.0.1:8787/ws        snapshot on connect and after every change
  http://127.0.0.1:8787/snapshot
  http://127.0.0.1:8787/health`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Widget.Port = port
		}

		out, logs := cfg.LogOutput(os.Stderr)
		defer logs.Close()

		cache := mirror.New(cfg.MirrorPath())

		rtConfig := realtime.DefaultConfig()
		rtConfig.BaseURL = cfg.Supabase.URL
		rtConfig.APIKey = cfg.Supabase.AnonKey
		rtConfig.Logger = newLogger("realtime", out)
		rt := realtime.NewWithConfig(rtConfig)
		defer rt.Close()

		server := widget.NewServer(&widget.Config{
			Host:   cfg.Widget.Host,
			Port:   cfg.Widget.Port,
			Mirror: cache,
			Logger: newLogger("widget", out),
		})

		a := openAppWith(cfg, appOptions{
			mirror:   cache,
			realtime: rt,
			notifier: server,
			logOut:   out,
		})
		defer a.close()
		server.SetActions(a.repo)

		watcher, err := mirror.NewWatcher(cache)
		if err != nil {
			a.close()
			fatalf("failed to create mirror watcher: %v", err)
		}

		daemonConfig := daemon.DefaultConfig()
		daemonConfig.Logger = newLogger("daemon", out)
		d, err := daemon.NewWithConfig(a.repo, watcher, server, daemonConfig)
		if err != nil {
			a.close()
			fatalf("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Syncing %s\n", cache.Path())
		fmt.Printf("Widget feed: ws://%s:%d/ws\n", cfg.Widget.Host, cfg.Widget.Port)
		fmt.Println("\nPress Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			_ = d.Stop()
			a.close()
			fatalf("%v", err)
		}
		fmt.Println("Daemon stopped")
	},
}

func init() {
	watchCmd.Flags().IntP("port", "p", 8787, "Widget feed port")

	rootCmd.AddCommand(watchCmd)
}
