package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pagechat/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change configuration",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		cfg := a.settings.Get()
		out := cmd.OutOrStdout()
		key := "(not set)"
		if cfg.APIKey != "" {
			key = maskKey(cfg.APIKey)
		}
		fmt.Fprintf(out, "API key:     %s\n", key)
		fmt.Fprintf(out, "Temperature: %.2f\n", cfg.Temperature)
		fmt.Fprintf(out, "Persona:     %s\n", cfg.CurrentPersona)
		return nil
	},
}

var settingsSetKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Store the Gemini API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		key := args[0]
		a.settings.Update(settings.Patch{APIKey: &key})
		fmt.Fprintln(cmd.OutOrStdout(), "API key saved.")
		return nil
	},
}

var settingsSetTempCmd = &cobra.Command{
	Use:   "set-temperature <value>",
	Short: "Set the sampling temperature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		temp, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", args[0], err)
		}
		if temp < 0 || temp > 2 {
			return fmt.Errorf("temperature %.2f out of range [0, 2]", temp)
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.settings.Update(settings.Patch{Temperature: &temp})
		fmt.Fprintf(cmd.OutOrStdout(), "Temperature set to %.2f.\n", temp)
		return nil
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore every setting to its default",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.settings.ResetAll()
		fmt.Fprintln(cmd.OutOrStdout(), "Settings restored to defaults.")
		return nil
	},
}

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage personas",
}

var personaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		cfg := a.settings.Get()
		out := cmd.OutOrStdout()
		for _, id := range settings.BuiltinPersonaIDs {
			p, ok := cfg.Personas[id]
			if !ok {
				continue
			}
			marker := " "
			if id == cfg.CurrentPersona {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-12s %s\n", marker, p.ID, p.Name)
		}
		for id, p := range cfg.Personas {
			if settings.IsBuiltin(id) {
				continue
			}
			marker := " "
			if id == cfg.CurrentPersona {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-12s %s\n", marker, p.ID, p.Name)
		}
		return nil
	},
}

var personaUseCmd = &cobra.Command{
	Use:   "use <persona-id>",
	Short: "Select the active persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.settings.SetCurrentPersona(args[0]) {
			return fmt.Errorf("persona %q not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Persona set to %s.\n", args[0])
		return nil
	},
}

var personaEditCmd = &cobra.Command{
	Use:   "edit <persona-id> <name> <system-prompt...>",
	Short: "Rename a persona and replace its system prompt",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id, name := args[0], args[1]
		prompt := strings.Join(args[2:], " ")
		if !a.settings.UpdatePersona(id, name, prompt) {
			return fmt.Errorf("persona %q not found", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Persona %s updated.\n", id)
		return nil
	},
}

var personaResetCmd = &cobra.Command{
	Use:   "reset <persona-id>",
	Short: "Restore a built-in persona to its default definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.settings.ResetPersona(args[0]) {
			return fmt.Errorf("persona %q is not a built-in persona", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Persona %s restored.\n", args[0])
		return nil
	},
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func init() {
	personaCmd.AddCommand(personaListCmd, personaUseCmd, personaEditCmd, personaResetCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetKeyCmd, settingsSetTempCmd, settingsResetCmd, personaCmd)
	rootCmd.AddCommand(settingsCmd)
}
