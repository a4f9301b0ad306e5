package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cloo-solutions/pdfqa/internal/app"
	"github.com/cloo-solutions/pdfqa/internal/config"
	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/logging"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/spf13/cobra"
)

// chatService is the part of the session service the REPL drives.
type chatService interface {
	Create(ctx context.Context, model domain.ModelVariant) (*service.SessionInfo, error)
	Upload(ctx context.Context, input service.UploadInput) (*service.SessionInfo, error)
	SetModel(ctx context.Context, sessionID string, model domain.ModelVariant) (*service.SessionInfo, error)
	Ask(ctx context.Context, sessionID string, input service.AskInput) (*service.Answer, error)
	History(ctx context.Context, sessionID string, q service.HistoryQuery) (*service.HistoryPage, error)
}

// ChatCmd creates the chat command, an interactive session run in-process.
func ChatCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "chat <file.pdf>",
		Short: "Chat with a PDF locally",
		Long: `Indexes a PDF in-process and answers questions read from stdin.

The pipeline is configured from the same PDFQA_* environment as the server.
Commands:
  :model <variant>   switch the model
  :history           print the conversation so far
  :quit              exit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := logging.Setup("warn", logging.FormatConsole); err != nil {
				return err
			}

			a, err := app.New(ctx, cfg, app.Options{SkipStorage: true})
			if err != nil {
				return err
			}
			defer a.Close()

			variant := domain.ModelVariant("")
			if model != "" {
				if variant, err = domain.ParseModelVariant(model); err != nil {
					return err
				}
			}

			return runChat(ctx, a.Sessions, args[0], variant, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model variant to start with")

	return cmd
}

func runChat(ctx context.Context, svc chatService, filePath string, model domain.ModelVariant, in io.Reader, out io.Writer) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", filePath, err)
	}

	session, err := svc.Create(ctx, model)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Indexing %s...\n", filepath.Base(filePath))
	session, err = svc.Upload(ctx, service.UploadInput{
		SessionID: session.ID,
		Filename:  filepath.Base(filePath),
		Data:      data,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Ready: %d pages, %d chunks, %s. Type :quit to exit.\n",
		session.Document.Pages, session.Document.Chunks, session.Model.Label())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == ":quit" || line == ":q":
			return nil
		case line == ":history":
			printChatHistory(ctx, svc, session.ID, out)
			continue
		case strings.HasPrefix(line, ":model"):
			arg := strings.TrimSpace(strings.TrimPrefix(line, ":model"))
			variant, err := domain.ParseModelVariant(arg)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if _, err := svc.SetModel(ctx, session.ID, variant); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Model set to %s\n", variant.Label())
			continue
		}

		answer, err := svc.Ask(ctx, session.ID, service.AskInput{
			Question: line,
			OnToken: func(_ context.Context, token string) error {
				_, err := io.WriteString(out, token)
				return err
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "\nerror: %v\n", err)
			continue
		}
		fmt.Fprintln(out)
		for i, s := range answer.Sources {
			fmt.Fprintf(out, "  [%d] page %d (%.2f)\n", i+1, s.Chunk.Page, s.Score)
		}
	}
}

func printChatHistory(ctx context.Context, svc chatService, sessionID string, out io.Writer) {
	page, err := svc.History(ctx, sessionID, service.HistoryQuery{})
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No questions asked yet.")
		return
	}
	for _, entry := range page.Items {
		fmt.Fprintf(out, "#%d [%s] %s\n   %s\n", entry.Position, entry.Turn.Model.Label(), entry.Turn.Question, entry.Turn.Answer)
	}
}
