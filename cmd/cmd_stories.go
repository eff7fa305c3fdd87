package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// storiesCmd manages persisted stories
var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "Inspect and delete persisted stories",
}

var storiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved stories, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeStore, err := openRepository(cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		stories, err := repo.GetAllStories(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tMODIFIED\tSUMMARY")
		for _, s := range stories {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Title, s.LastModified.Local().Format(time.DateTime), s.Summary)
		}
		return w.Flush()
	},
}

var storiesDeleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete saved stories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeStore, err := openRepository(cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		for _, id := range args {
			if err := repo.DeleteStory(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			logger.Info("Story deleted", zap.String("story_id", id))
		}
		return nil
	},
}

func init() {
	storiesCmd.AddCommand(storiesListCmd, storiesDeleteCmd)
}
