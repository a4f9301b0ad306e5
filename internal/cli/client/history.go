package client

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// HistoryCmd creates the history command.
func HistoryCmd() *cobra.Command {
	var (
		limit       int
		cursor      string
		newestFirst bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the conversation of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, sessionID, err := sessionClient(cmd)
			if err != nil {
				return err
			}

			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			if newestFirst {
				q.Set("order", "desc")
			}
			path := "/sessions/" + sessionID + "/history"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := api.Get(path)
			if err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}
			history, err := decode[History](resp)
			if err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(history)
			}
			if len(history.Turns) == 0 {
				fmt.Println("No questions asked yet.")
				return nil
			}
			for _, turn := range history.Turns {
				fmt.Printf("#%d [%s] %s\n", turn.Position, turn.Model, turn.Question)
				fmt.Printf("   %s\n\n", turn.Answer)
			}
			if history.HasMore {
				fmt.Printf("More turns available: --cursor %s\n", history.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of turns (0 for all)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().BoolVar(&newestFirst, "newest-first", false, "List the latest turns first")

	return cmd
}
