package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ahn-nath/confevo/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a GitHub token in the OS keychain",
	Long: `Store a GitHub personal access token in the OS keychain so runs are
authenticated without exporting GITHUB_TOKEN. Unauthenticated runs are limited
to 60 requests per hour.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored GitHub token from the OS keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewKeyringManager().DeleteGitHubToken(); err != nil {
			return err
		}
		color.New(color.FgGreen).Println("✓ GitHub token removed")
		return nil
	},
}

func runLogin(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()
	if !km.IsAvailable() {
		return fmt.Errorf("OS keychain is not available; set GITHUB_TOKEN instead")
	}

	fmt.Print("GitHub token: ")
	token, err := readToken()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := km.SetGitHubToken(token); err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Stored %s in the OS keychain\n", config.MaskToken(token))
	return nil
}

// readToken reads without echo on a terminal, or a single line from a pipe
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func maskedToken() string {
	return config.MaskToken(cfg.GitHub.Token)
}
