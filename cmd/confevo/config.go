package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage confevo configuration",
	Long:  `View and write confevo configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, config file, .env files and
environment variables have been applied. The GitHub token is masked.`,
	RunE: runConfigShow,
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file",
	Long: `Write the effective configuration as YAML so it can be edited.
The GitHub token is never written; use 'confevo login' or GITHUB_TOKEN.

Examples:
  confevo config init                  # writes .confevo/confevo.yaml
  confevo config init ./confevo.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := *cfg
	if out.GitHub.Token != "" {
		out.GitHub.Token = maskedToken()
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))

	if result := cfg.Check(); len(result.Errors) > 0 || len(result.Warnings) > 0 {
		fmt.Println()
		for _, e := range result.Errors {
			color.New(color.FgRed).Printf("error: %s\n", e)
		}
		for _, w := range result.Warnings {
			color.New(color.FgYellow).Printf("warning: %s\n", w)
		}
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(".confevo", "confevo.yaml")
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Wrote %s\n", path)
	return nil
}
