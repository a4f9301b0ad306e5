package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// ConfigCmd creates the config command group for the stored CLI state.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the stored CLI configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadGlobalConfig()
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = &GlobalConfig{}
			}
			path, err := GetConfigPath()
			if err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(cfg)
			}
			fmt.Printf("Config:  %s\n", path)
			fmt.Printf("API URL: %s\n", valueOr(cfg.APIURL, defaultAPIURL+" (default)"))
			fmt.Printf("Session: %s\n", valueOr(cfg.SessionID, "none"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <url>",
		Short: "Store the API base URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid URL %q", args[0])
			}
			if err := updateGlobalConfig(func(cfg *GlobalConfig) { cfg.APIURL = args[0] }); err != nil {
				return err
			}
			fmt.Printf("API URL set to %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the stored API URL and session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return err
			}
			fmt.Println("Configuration cleared")
			return nil
		},
	})

	return cmd
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
