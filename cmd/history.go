package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/algomgr/internal/app"
	"github.com/zjrosen/algomgr/internal/journal"
)

const errorColumnWidth = 48

// ErrJournalDisabled is returned by history when journal.enabled is false.
var ErrJournalDisabled = errors.New("run journal is disabled (set journal.enabled: true)")

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		handle uint64
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show runs recorded in the journal, newest first.

Examples:
  algomgr history --limit 5
  algomgr history --handle 12 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(a *app.App) error {
				if a.Journal == nil {
					return ErrJournalDisabled
				}
				var (
					entries []journal.Entry
					err     error
				)
				if cmd.Flags().Changed("handle") {
					entries, err = a.Journal.ForHandle(cmd.Context(), handle)
				} else {
					entries, err = a.Journal.Recent(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				return writeHistory(cmd.OutOrStdout(), output, entries)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().Uint64Var(&handle, "handle", 0, "only runs of this handle id")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func writeHistory(w io.Writer, format string, entries []journal.Entry) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "table", "":
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, subtleStyle.Render("no runs recorded"))
			return err
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.RunID,
				strconv.FormatUint(e.HandleID, 10),
				fmt.Sprintf("%s v%d", e.Name, e.Version),
				e.Kind,
				e.Mode,
				e.Outcome,
				e.Duration().String(),
				runewidth.Truncate(e.Error, errorColumnWidth, "…"),
			})
		}
		_, err := io.WriteString(w, renderTable(
			[]string{"RUN", "HANDLE", "ALGORITHM", "KIND", "MODE", "OUTCOME", "DURATION", "ERROR"}, rows))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", format)
	}
}
