package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/slots"
)

func newSlotsCmd() *cobra.Command {
	var (
		duration int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free blocks or bookable slots",
		Long: `List the free blocks of the configured calendar within the booking horizon.

With --duration the blocks are split into back-to-back slots of that many
minutes, exactly as the /bookable-slots endpoint offers them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := globals.requireCalendar(); err != nil {
				return err
			}
			if duration < 0 {
				return fmt.Errorf("duration must be positive, got %d", duration)
			}

			logger := globals.logger()
			store, closeStore, err := globals.openStandaloneStore()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			session := newSession(store, globals.oauthConfig(false), logger, nil)
			cal, err := globals.calendarClient(ctx, session, logger, nil)
			if err != nil {
				return err
			}

			blocks, err := cal.ListFreeBlocks(ctx, globals.HorizonDays)
			if err != nil {
				return fmt.Errorf("failed to list free blocks: %w", err)
			}

			out := cmd.OutOrStdout()
			if duration == 0 {
				return printBlocks(out, blocks, asJSON)
			}
			return printSlots(out, slots.DecomposeMinutes(blocks, duration), asJSON)
		},
	}

	cmd.Flags().IntVar(&duration, "duration", 0, "Split blocks into slots of this many minutes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

func printBlocks(out io.Writer, blocks []calendar.FreeBlock, asJSON bool) error {
	if asJSON {
		return writeJSON(out, blocks)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tMINUTES")
	for _, b := range blocks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", b.ID, b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339), int(b.Duration().Minutes()))
	}
	return w.Flush()
}

func printSlots(out io.Writer, list []slots.BookableSlot, asJSON bool) error {
	if asJSON {
		return writeJSON(out, list)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BLOCK\tSTART\tEND")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.SourceBlockID, s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
