package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagechat/internal/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export settings and conversation history as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		data, err := export.Export(a.settings, a.history)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if exportOutput == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := os.WriteFile(exportOutput, data, 0o600); err != nil {
			return fmt.Errorf("write export file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s.\n", exportOutput)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import settings and conversation history from an export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := export.Import(raw, a.settings, a.history); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Import complete.")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd, importCmd)
}
