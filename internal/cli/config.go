package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/idxmirror/internal/config"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/types"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Commands for managing idxmirror configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective configuration after the file, environment and flags are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.output().WriteSuccess("config.show", configView{a.cfg})
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults",
		Long:  "Write the default configuration to the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			a.logger.Info("Configuration reset", logging.F("path", path))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, path)
			return err
		},
	})

	return configCmd
}

func (a *app) configPath() (string, error) {
	if a.globalFlags.Config != "" {
		return a.globalFlags.Config, nil
	}
	return config.GetConfigPath()
}

// configView renders a Config as a key/value table
type configView struct {
	*config.Config
}

func (v configView) AsTableRenderer() types.TableRenderer {
	return v
}

func (v configView) Headers() []string {
	return []string{"Key", "Value"}
}

func (v configView) Rows() [][]string {
	c := v.Config
	excludes := "-"
	if len(c.Excludes) > 0 {
		excludes = strings.Join(c.Excludes, ", ")
	}
	return [][]string{
		{"baseURL", c.BaseURL},
		{"maxRetries", fmt.Sprint(c.MaxRetries)},
		{"retryDelay", c.GetRetryDelay().String()},
		{"requestTimeout", c.GetRequestTimeout().String()},
		{"concurrency", fmt.Sprint(c.Concurrency)},
		{"chunkSize", fmt.Sprint(c.ChunkSize)},
		{"logLevel", c.LogLevel},
		{"outputFormat", string(c.OutputFormat)},
		{"colorOutput", fmt.Sprint(c.ColorOutput)},
		{"showProgress", fmt.Sprint(c.ShowProgress)},
		{"excludes", excludes},
	}
}

func (v configView) EmptyMessage() string {
	return "No configuration"
}
