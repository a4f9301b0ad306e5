package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SessionCmd creates the session command group.
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage question-answering sessions",
	}

	cmd.AddCommand(sessionNewCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionDeleteCmd())
	cmd.AddCommand(sessionModelCmd())

	return cmd
}

func sessionNewCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a session and make it current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var body map[string]string
			if model != "" {
				body = map[string]string{"model": model}
			}
			resp, err := api.Post("/sessions", body)
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			session, err := decode[Session](resp)
			if err != nil {
				return err
			}

			if err := SetCurrentSession(session.ID); err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(session)
			}
			fmt.Printf("Created session %s (%s)\n", session.ID, session.ModelLabel)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model variant for the session")

	return cmd
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, sessionID, err := sessionClient(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/sessions/" + sessionID)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			session, err := decode[Session](resp)
			if err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(session)
			}
			printSession(session)
			return nil
		},
	}
}

func sessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, sessionID, err := sessionClient(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete("/sessions/" + sessionID); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			if err := ClearCurrentSession(sessionID); err != nil {
				return err
			}

			fmt.Printf("Deleted session %s\n", sessionID)
			return nil
		},
	}
}

func sessionModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model <variant>",
		Short: "Change the model of the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, sessionID, err := sessionClient(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Put("/sessions/"+sessionID+"/model", map[string]string{"model": args[0]})
			if err != nil {
				return fmt.Errorf("failed to set model: %w", err)
			}
			session, err := decode[Session](resp)
			if err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(session)
			}
			fmt.Printf("Session %s now uses %s\n", session.ID, session.ModelLabel)
			return nil
		},
	}
}

func sessionClient(cmd *cobra.Command) (*APIClient, string, error) {
	sessionID, err := ResolveSessionID(cmd)
	if err != nil {
		return nil, "", err
	}
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return nil, "", err
	}
	return api, sessionID, nil
}
