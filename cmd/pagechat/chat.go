package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pagechat/internal/chat"
	"pagechat/internal/repl"
	"pagechat/internal/session"
)

var pageFile string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

func runChat(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	engine := a.engine()
	if err := engine.StartNew(); err != nil {
		return err
	}

	loop := repl.New(repl.Options{
		Engine:   engine,
		Settings: a.settings,
		History:  a.history,
		Input:    repl.NewLineInput(filepath.Join(a.dir, "input_history")),
		Out:      cmd.OutOrStdout(),
		Theme:    repl.DefaultTheme(),
		Logger:   a.log,
	})

	if pageFile != "" {
		if err := attachPage(engine, pageFile); err != nil {
			return err
		}
	}
	return loop.Run(cmd.Context())
}

func attachPage(engine *session.Engine, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read page file: %w", err)
	}
	var page chat.PageContent
	if err := json.Unmarshal(raw, &page); err != nil {
		return fmt.Errorf("parse page file: %w", err)
	}
	return engine.SetPageInfo(&page)
}

func init() {
	chatCmd.Flags().StringVar(&pageFile, "page", "", "JSON file with page content to attach")
	rootCmd.AddCommand(chatCmd)
}
