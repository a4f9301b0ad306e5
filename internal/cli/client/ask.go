package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AskRequest is the body of the ask endpoint.
type AskRequest struct {
	Question string `json:"question"`
	Model    string `json:"model,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var req AskRequest

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the current session's document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Question = strings.Join(args, " ")
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAsk(cmd, req, outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&req.Stream, "stream", "s", false, "Print the answer as it is generated")
	cmd.Flags().StringVarP(&req.Model, "model", "m", "", "Model variant for this question")
	cmd.Flags().IntVarP(&req.TopK, "top-k", "k", 0, "Number of chunks to retrieve")

	return cmd
}

func runAsk(cmd *cobra.Command, req AskRequest, outputJSON bool) error {
	api, sessionID, err := sessionClient(cmd)
	if err != nil {
		return err
	}
	path := "/sessions/" + sessionID + "/ask"

	if !req.Stream {
		resp, err := api.Post(path, req)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		answer, err := decode[Answer](resp)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(answer)
		}
		fmt.Println(answer.Answer)
		printSources(answer.Sources)
		return nil
	}

	answer, err := streamAnswer(api, path, req, func(token string) {
		if !outputJSON {
			fmt.Print(token)
		}
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(answer)
	}
	fmt.Println()
	printSources(answer.Sources)
	return nil
}

// streamAnswer collects token events and returns the final answer event.
func streamAnswer(api *APIClient, path string, req AskRequest, onToken func(string)) (*Answer, error) {
	var answer *Answer
	err := api.Stream(path, req, func(event string, data []byte) error {
		switch event {
		case "token":
			var token struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(data, &token); err != nil {
				return fmt.Errorf("bad token event: %w", err)
			}
			onToken(token.Text)
		case "answer":
			answer = &Answer{}
			if err := json.Unmarshal(data, answer); err != nil {
				return fmt.Errorf("bad answer event: %w", err)
			}
		case "error":
			var apiErr APIResponse
			if err := json.Unmarshal(data, &apiErr); err != nil {
				return fmt.Errorf("bad error event: %w", err)
			}
			return &APIError{StatusCode: 200, Code: apiErr.Code, Message: apiErr.Error}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ask failed: %w", err)
	}
	if answer == nil {
		return nil, fmt.Errorf("ask failed: stream ended without an answer")
	}
	return answer, nil
}
