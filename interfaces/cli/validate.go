package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inquestlabs/inquest/infrastructure/config"
)

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an investigation configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoaderWithOptions(config.WithValidation(false))
			cfg, err := loader.LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if errs := config.Validate(cfg); errs.HasErrors() {
				fmt.Fprintf(a.stderr, "%s is invalid:\n", configPath)
				for _, e := range errs.Errors {
					fmt.Fprintf(a.stderr, "  - %s\n", e)
				}
				return config.ErrValidationFailed
			}

			fmt.Fprintf(a.stdout, "%s is valid\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
