package cmd

import (
	"context"
	"io"

	"github.com/cinemadb/essync/ingest"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// CursorsMain is wrapped by NewCursorsCommand and only exported for testing
// purposes.
var CursorsMain *ingest.Main

// NewCursorsCommand returns a command which shows the stored watermarks, or
// deletes one with --reset.
func NewCursorsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	CursorsMain = ingest.NewMain()
	var reset string
	cursorsCommand := &cobra.Command{
		Use:   "cursors",
		Short: "Show or reset the watermark of each kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if reset != "" {
				return CursorsMain.ResetCursor(ctx, reset)
			}
			return CursorsMain.ShowCursors(ctx, stdout)
		},
	}
	flags := cursorsCommand.Flags()
	err := commandeer.Flags(flags, CursorsMain)
	if err != nil {
		panic(err)
	}
	flags.StringVar(&reset, "reset", "", "Delete the watermark of this kind so it is reloaded from the beginning.")
	return cursorsCommand
}

func init() {
	subcommandFns["cursors"] = NewCursorsCommand
}
