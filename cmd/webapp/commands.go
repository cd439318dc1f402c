package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/webapp/pkg/sites/github"
)

// EnvGitHubPassword supplies the login password when --password is not given
const EnvGitHubPassword = "WEBAPP_GITHUB_PASSWORD"

// openCommand creates the open subcommand
func (c *CLI) openCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <url>",
		Short: "Open a URL in a new session and print where it landed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s := c.newSession()
			if err := s.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}

			page, err := s.GotoPage(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), page.URL())
			c.waitIfHolding(cmd)
			return nil
		},
	}
}

// githubCommand creates the github subcommand
func (c *CLI) githubCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github",
		Short: "GitHub workflows",
	}

	// github homepage
	cmd.AddCommand(&cobra.Command{
		Use:   "homepage",
		Short: "Open github.com",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			automation, err := c.github.Instance(ctx, github.WithHeadless(c.cfg.Headless))
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			page, err := automation.Homepage(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), page.URL())
			c.waitIfHolding(cmd)
			return nil
		},
	})

	// github login
	var username, password string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to GitHub unless already signed in",
		Long: fmt.Sprintf(`Sign in to GitHub with a username and password.

The password is read from --password or the %s environment variable.
Nothing is submitted when the session already shows a signed-in user.
Whether the sign-in succeeded is not checked.`, EnvGitHubPassword),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if password == "" {
				password = os.Getenv(EnvGitHubPassword)
			}
			if password == "" {
				return fmt.Errorf("password is required (use --password or %s)", EnvGitHubPassword)
			}

			automation, err := c.github.Instance(ctx, github.WithHeadless(c.cfg.Headless))
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			page, err := automation.Login(ctx, username, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), page.URL())
			c.waitIfHolding(cmd)
			return nil
		},
	}
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "GitHub username or email")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "GitHub password")
	_ = loginCmd.MarkFlagRequired("username")
	cmd.AddCommand(loginCmd)

	return cmd
}
