package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/magicmac/myday/internal/ui"
)

const requestTimeout = 30 * time.Second

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "setup",
	Short:   "Sign in with email and password",
	Long: `Sign in to the backend and store the session on this device.

On a terminal an interactive form asks for anything not given as a flag.
Otherwise pass --email and pipe the password on stdin:

  echo "$PASSWORD" | myday login --email me@example.com`,
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")

		password, err := readCredentials(&email)
		if err != nil {
			fatalf("%v", err)
		}

		a := openApp(appOptions{})
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		session, err := a.repo.SignIn(ctx, email, password)
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), session.Email)

		tasks, err := a.repo.LoadTasks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load tasks: %v\n", err)
			return
		}
		fmt.Printf("   %d tasks today\n", len(a.todayTasks(tasks)))
	},
}

// readCredentials fills in the email and returns the password. On a
// terminal a form asks for both, or just a hidden prompt for the password
// when the email was given. Otherwise the password is read from stdin.
func readCredentials(email *string) (string, error) {
	interactive := ui.IsTerminal(os.Stdin)
	haveEmail := strings.TrimSpace(*email) != ""

	switch {
	case interactive && haveEmail:
		return readSecret("Password: ")
	case interactive:
		var password string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return fmt.Errorf("enter an email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		))
		if err := form.Run(); err != nil {
			return "", fmt.Errorf("login cancelled: %w", err)
		}
		return password, nil
	case !haveEmail:
		return "", fmt.Errorf("--email is required when stdin is not a terminal")
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readSecret reads a line from the terminal without echo.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "setup",
	Short:   "Sign out and clear local data",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(appOptions{})
		defer a.close()

		if err := a.repo.SignOut(context.Background()); err != nil {
			a.close()
			fatalf("%v", err)
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "setup",
	Short:   "Print the signed-in account",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(appOptions{})
		defer a.close()

		session, err := a.repo.Session(context.Background())
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		fmt.Println(session.Email)
	},
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "Account email")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
