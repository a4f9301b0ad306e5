package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ModelsCmd creates the models command.
func ModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the available model variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/models")
			if err != nil {
				return fmt.Errorf("failed to list models: %w", err)
			}
			models, err := decode[[]Model](resp)
			if err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(models)
			}
			for _, m := range *models {
				marker := " "
				if m.Default {
					marker = "*"
				}
				fmt.Printf("%s %-20s %s\n", marker, m.Name, m.Label)
			}
			return nil
		},
	}
}
