package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pagechat/internal/chat"
	"pagechat/internal/history"
	"pagechat/internal/repl"
)

var (
	historySortKey string
	historyAsc     bool
	historyYes     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		sessions := history.Sort(a.history.All(), history.SortKey(historySortKey), historyAsc)
		printSessionTable(cmd, sessions)
		return nil
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search conversations by title, page title or message content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		printSessionTable(cmd, a.history.Search(args[0]))
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print one conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		s, ok := a.history.Get(args[0])
		if !ok {
			return fmt.Errorf("session %q not found", args[0])
		}
		theme := repl.DefaultTheme()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.TitleStyle.Render(s.Title))
		if s.PageInfo != nil {
			fmt.Fprintln(out, theme.MutedStyle.Render(s.PageInfo.Title+"  "+s.PageInfo.URL))
		}
		for _, msg := range s.Messages {
			switch msg.Role {
			case chat.RoleAssistant:
				fmt.Fprintln(out, theme.AssistantStyle.Render("assistant:"))
				fmt.Fprintln(out, repl.RenderMarkdown(msg.Content, 100))
			default:
				fmt.Fprintln(out, theme.UserStyle.Render(string(msg.Role)+": ")+msg.Content)
			}
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete one conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.history.Delete(args[0]) {
			return fmt.Errorf("session %q not found", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !historyYes {
			return fmt.Errorf("refusing to clear history without --yes")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.history.Clear()
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	},
}

func printSessionTable(cmd *cobra.Command, sessions []chat.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved conversations.")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, s := range sessions {
		updated := time.UnixMilli(s.Timestamp).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Title, len(s.Messages), updated)
	}
	w.Flush()
}

func init() {
	historyListCmd.Flags().StringVar(&historySortKey, "sort", string(history.SortByTimestamp), "Sort key: timestamp or title")
	historyListCmd.Flags().BoolVar(&historyAsc, "asc", false, "Sort ascending")
	historyClearCmd.Flags().BoolVar(&historyYes, "yes", false, "Confirm clearing all conversations")

	historyCmd.AddCommand(historyListCmd, historySearchCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
