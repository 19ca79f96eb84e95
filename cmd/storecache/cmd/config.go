package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(viper.GetViper())
		if err != nil {
			return err
		}

		options, err := settings.Options()
		if err != nil {
			return fmt.Errorf("invalid cache options: %w", err)
		}

		out := struct {
			Settings          Settings `json:"settings"`
			ConsistencyWindow string   `json:"consistency_window"`
			ConfigFile        string   `json:"config_file,omitempty"`
		}{
			Settings:          settings,
			ConsistencyWindow: options.ConsistencyWindow().String(),
			ConfigFile:        viper.ConfigFileUsed(),
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
