package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mnemo-dev/mnemo/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect mnemo's layered configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigExportCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration (defaults + user + project + env)",
		RunE: func(c *cobra.Command, args []string) error {
			root := resolveProjectRoot()
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(c.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func newConfigExportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Write the resolved configuration to a file as YAML or TOML",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			root := resolveProjectRoot()
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			switch format {
			case "toml":
				return cfg.WriteTOML(args[0])
			case "yaml", "":
				return cfg.WriteYAML(args[0])
			default:
				return fmt.Errorf("unknown --format %q, want yaml or toml", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or toml")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a .mnemo.yaml with mnemo's defaults to the project root",
		RunE: func(c *cobra.Command, args []string) error {
			root := resolveProjectRoot()
			cfg := config.New()
			path := root + "/.mnemo.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}
