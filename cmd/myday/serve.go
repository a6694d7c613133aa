package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/magicmac/myday/internal/insights"
	"github.com/magicmac/myday/internal/supabase"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the insights and admin HTTP server",
	Long: `Serve the HTTP API used by the web app and 'myday insights':

  POST /api/insights            coaching report for the last 14 days
  POST /api/admin/create-user   create an account (admins only)
  GET  /healthz

Insights need ANTHROPIC_API_KEY. User creation needs
SUPABASE_SERVICE_ROLE_KEY. With SUPABASE_JWT_SECRET set, bearer tokens are
verified locally instead of by the auth server.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := cfg.RequireBackend(); err != nil {
			fatalf("%v", err)
		}
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		out, logs := cfg.LogOutput(os.Stderr)
		defer logs.Close()
		logger := newLogger("insights", out)

		gin.SetMode(gin.ReleaseMode)

		anon := supabase.NewClient(nil, cfg.Supabase.URL, cfg.Supabase.AnonKey)
		serverConfig := &insights.Config{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			Tasks:        anon,
			Verifier:     insights.NewVerifier(cfg.Supabase.JWTSecret, anon),
			AllowOrigins: cfg.Server.AllowOrigins,
			Logger:       logger,
		}
		if cfg.Anthropic.APIKey != "" {
			serverConfig.Completer = insights.NewAnthropicCompleter(cfg.Anthropic.APIKey)
		} else {
			logger.Println("Warning: ANTHROPIC_API_KEY is not set; insights are disabled")
		}
		if key := cfg.Supabase.ServiceRoleKey; key != "" {
			serverConfig.Admin = supabase.NewClient(nil, cfg.Supabase.URL, key)
			serverConfig.AdminToken = key
		} else {
			logger.Println("Warning: SUPABASE_SERVICE_ROLE_KEY is not set; user creation is disabled")
		}

		server := insights.NewServer(serverConfig)
		if err := server.Start(); err != nil {
			fatalf("failed to start server: %v", err)
		}
		fmt.Printf("Insights server started on http://%s\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down insights server...")
		if err := server.Stop(); err != nil {
			fatalf("during shutdown: %v", err)
		}
		fmt.Println("Insights server stopped")
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8788, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
