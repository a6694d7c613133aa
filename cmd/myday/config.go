package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/magicmac/myday/internal/config"
	"github.com/magicmac/myday/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil && !force {
			fatalf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			fatalf("failed to write config: %v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Println("   Set supabase.url and supabase.anon_key, then run 'myday login'")
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		masked := *cfg
		masked.Supabase.AnonKey = mask(cfg.Supabase.AnonKey)
		masked.Supabase.ServiceRoleKey = mask(cfg.Supabase.ServiceRoleKey)
		masked.Supabase.JWTSecret = mask(cfg.Supabase.JWTSecret)
		masked.Anthropic.APIKey = mask(cfg.Anthropic.APIKey)

		out, err := yaml.Marshal(&masked)
		if err != nil {
			fatalf("failed to encode config: %v", err)
		}
		fmt.Print(string(out))
	},
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
