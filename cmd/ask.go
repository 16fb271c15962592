package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/rag"
	"github.com/ziadkadry99/docqa/internal/session"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

var (
	askNoSync  bool
	askSession string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the documents",
	Long: `Answers a question using the passages of the indexed documents most
relevant to it. Without a question, starts an interactive chat; type 'reset'
to start a new conversation and 'exit' to quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNoSync, "no-sync", false, "skip syncing the documents folder first")
	askCmd.Flags().StringVar(&askSession, "session", "", "continue an existing chat session")
	rootCmd.AddCommand(askCmd)
}

// chatUI prints a conversation and records it in a session.
type chatUI struct {
	assistant *rag.Assistant
	sessions  *session.Store
	sessionID string

	you    func(a ...interface{}) string
	bot    func(a ...interface{}) string
	dim    func(a ...interface{}) string
	errout func(a ...interface{}) string
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if !askNoSync {
		report, err := a.engine.Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		if report.Changed() {
			printReport(report)
		}
	}

	assistant, err := a.assistant()
	if err != nil {
		return err
	}

	ui := &chatUI{
		assistant: assistant,
		sessions:  session.NewStore(a.database),
		you:       color.New(color.FgGreen, color.Bold).SprintFunc(),
		bot:       color.New(color.FgCyan, color.Bold).SprintFunc(),
		dim:       color.New(color.Faint).SprintFunc(),
		errout:    color.New(color.FgRed).SprintFunc(),
	}
	if err := ui.open(ctx, askSession); err != nil {
		return err
	}

	if len(args) == 1 {
		return ui.turn(ctx, args[0])
	}
	return ui.repl(ctx)
}

// open resumes the session with the given ID or starts a new one.
func (u *chatUI) open(ctx context.Context, id string) error {
	if id == "" {
		s, err := u.sessions.Create(ctx)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		u.sessionID = s.ID
		return nil
	}

	state, err := u.sessions.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return err
	}
	u.sessionID = state.ID
	for _, m := range state.Messages {
		if m.Role == session.RoleUser {
			fmt.Printf("%s%s\n", u.you("You: "), m.Content)
		} else {
			fmt.Printf("%s%s\n\n", u.bot("Assistant: "), m.Content)
		}
	}
	return nil
}

func (u *chatUI) repl(ctx context.Context) error {
	fmt.Println(u.you("docqa chat"))
	fmt.Println("Type your question and press Enter. Type 'reset' to start over, 'exit' or Ctrl+C to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(u.you("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			if err := u.sessions.Reset(ctx, u.sessionID); err != nil {
				return err
			}
			fmt.Println(u.dim("Conversation cleared."))
			fmt.Println()
			continue
		}

		if err := u.turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, u.errout("Error: "+err.Error()))
		}
	}
	return scanner.Err()
}

// turn asks one question, streams the answer and stores both messages.
func (u *chatUI) turn(ctx context.Context, question string) error {
	if _, err := u.sessions.Append(ctx, u.sessionID, session.RoleUser, question); err != nil {
		return err
	}

	reply, err := u.assistant.Ask(ctx, question)
	if err != nil {
		return err
	}

	fmt.Print(u.bot("Assistant: "))
	for fragment := range reply.Fragments() {
		fmt.Print(fragment)
	}
	fmt.Println()

	if sources := vectordb.Sources(reply.Sources); len(sources) > 0 {
		fmt.Println(u.dim("Sources: " + strings.Join(sources, ", ")))
	}
	fmt.Println()

	if err := reply.Err(); err != nil {
		return err
	}
	_, err = u.sessions.Append(ctx, u.sessionID, session.RoleAssistant, reply.Text())
	return err
}
