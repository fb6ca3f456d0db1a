package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tytohq/aurora/internal/config"
	"github.com/tytohq/aurora/internal/store"
)

// failuresCmd prints the most recent failed invocations from the outcome
// journal. Useful when the pipeline is silent on the inbound channel and
// an operator wants to know why a message got no response.
func failuresCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show recent failed agent invocations from the outcome journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Pipeline.JournalPath == "" {
				return fmt.Errorf("outcome journal is not configured (set pipeline.journal_path or AURORA_JOURNAL_PATH)")
			}

			j, err := store.Open(cfg.Pipeline.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.RecentFailures(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no recorded failures")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tRUN\tTYPE\tCHANNEL\tKIND\tDURATION")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.RunID, e.EventType, e.ChannelID, e.Kind, e.DurationMS)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of failures to show")
	return cmd
}
