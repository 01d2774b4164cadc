package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/session"
)

var (
	chatNew     bool
	chatHistory bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <crew-id> [message]",
	Short: "Chat with a crew",
	Long: `Send messages to a crew's chat endpoint. The conversation is kept in the
session file so later invocations continue the same chat.

Without a message an interactive prompt is opened; type /new to start a
fresh chat and /exit to leave.

Examples:
  crewview chat research "What did you find about LLM evals?"
  crewview chat research --new
  crewview chat research --history`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runChat,
}

var chatThreadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List saved chat threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := session.NewStore(cfg.SessionFile, GetLogger()).Load()
		if err != nil {
			return err
		}
		if len(st.Threads) == 0 {
			fmt.Println("No chat threads yet.")
			return nil
		}

		ids := make([]string, 0, len(st.Threads))
		for id := range st.Threads {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return st.Threads[ids[i]].UpdatedAt > st.Threads[ids[j]].UpdatedAt
		})

		printHeader("%-36s %-20s %-8s %s", "Chat ID", "Crew", "Messages", "Title")
		for _, id := range ids {
			t := st.Threads[id]
			marker := " "
			if id == st.ChatID {
				marker = "*"
			}
			fmt.Printf("%-36s %-20s %-8d %s%s\n", id, t.CrewID, len(t.Messages), marker, t.Title)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatThreadsCmd)

	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start a new chat instead of continuing the last one")
	chatCmd.Flags().BoolVar(&chatHistory, "history", false, "Print the current chat history and exit")
}

// chatSession ties one backend chat to its persisted thread
type chatSession struct {
	client *api.Client
	store  *session.Store
	state  *session.State
	crewID string
	chatID string
}

func runChat(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}
	store := session.NewStore(cfg.SessionFile, GetLogger())
	state, err := store.Load()
	if err != nil {
		return err
	}

	cs := &chatSession{client: client, store: store, state: state, crewID: args[0]}
	if chatNew {
		cs.chatID = state.NewChat(cs.crewID)
	} else {
		cs.chatID = state.Chat(cs.crewID)
	}

	if chatHistory {
		printThread(state.Thread(cs.chatID))
		return nil
	}

	ctx := cmd.Context()
	if err := cs.open(ctx); err != nil {
		return err
	}

	if len(args) == 2 {
		return cs.send(ctx, args[1])
	}
	return cs.prompt(ctx)
}

func (cs *chatSession) open(ctx context.Context) error {
	info, err := cs.client.InitializeChat(ctx, cs.crewID, cs.chatID)
	if err != nil {
		return fmt.Errorf("failed to initialize chat: %w", err)
	}
	if info.ChatID != "" && info.ChatID != cs.chatID {
		cs.chatID = info.ChatID
		cs.state.ChatID = info.ChatID
	}
	if err := cs.store.Save(cs.state); err != nil {
		return err
	}

	name := info.CrewName
	if name == "" {
		name = cs.crewID
	}
	color.New(color.FgCyan, color.Bold).Printf("💬 %s", name)
	fmt.Printf("  %s\n", color.New(color.Faint).Sprint("chat "+cs.chatID))
	if info.Message != "" {
		fmt.Println(info.Message)
	}
	return nil
}

func (cs *chatSession) send(ctx context.Context, message string) error {
	cs.state.Append(cs.chatID, cs.crewID, "user", message, time.Now())
	reply, err := cs.client.Chat(ctx, cs.crewID, cs.chatID, message)
	if err != nil {
		_ = cs.store.Save(cs.state)
		return fmt.Errorf("chat request failed: %w", err)
	}
	cs.state.Append(cs.chatID, cs.crewID, "assistant", reply.Content, time.Now())
	if err := cs.store.Save(cs.state); err != nil {
		return err
	}

	color.New(color.FgGreen).Print("crew › ")
	fmt.Println(reply.Content)
	return nil
}

func (cs *chatSession) prompt(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		color.New(color.FgCyan).Print("you › ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			cs.chatID = cs.state.NewChat(cs.crewID)
			if err := cs.open(ctx); err != nil {
				return err
			}
			continue
		}
		if err := cs.send(ctx, line); err != nil {
			color.Red("✗ %v", err)
		}
	}
}

func printThread(t *session.Thread) {
	if t == nil || len(t.Messages) == 0 {
		fmt.Println("No messages in this chat yet.")
		return
	}
	for _, m := range t.Messages {
		ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04:05")
		who := color.New(color.FgCyan).Sprint("you")
		if m.Role != "user" {
			who = color.New(color.FgGreen).Sprint("crew")
		}
		fmt.Printf("%s %s › %s\n", color.New(color.Faint).Sprint(ts), who, m.Content)
	}
}
