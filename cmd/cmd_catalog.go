package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/prompts"
	"story-o-matic/server/internal/strategy"
)

// genresCmd lists the genre catalog
var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List available genres and instruction presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Genres:")
		for _, g := range catalog.Genres() {
			fmt.Fprintf(out, "  %-16s %s (%s)\n", g.Key, g.Description, strings.Join(g.Authors, ", "))
		}
		fmt.Fprintln(out, "\nInstructions:")
		for _, in := range catalog.Instructions() {
			fmt.Fprintf(out, "  %-24s %s\n", in.Title, in.Prompt)
		}
		return nil
	},
}

// strategiesCmd lists the prompt strategy versions
var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List prompt strategy versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := prompts.NewDefaultLoader()
		if err != nil {
			return err
		}
		for _, v := range strategy.NewManager(loader).Versions() {
			marker := ""
			if v == cfg.Engine.DefaultStrategy {
				marker = " (default)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", v, marker)
		}
		return nil
	},
}
