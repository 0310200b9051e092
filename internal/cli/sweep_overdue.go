package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mrlokans/libmanage/internal/entrypoint"
)

// SweepOverdueCommand closes every borrow past its due date once.
type SweepOverdueCommand struct {
	DatabasePath string

	out io.Writer
}

func NewSweepOverdueCommand() *SweepOverdueCommand {
	return &SweepOverdueCommand{out: os.Stdout}
}

func (cmd *SweepOverdueCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sweep-overdue", flag.ExitOnError)
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the SQLite database (defaults to DATABASE_PATH)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sweep-overdue [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Mark every overdue borrow as returned.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

func (cmd *SweepOverdueCommand) Run() error {
	app, err := openApp(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer app.Close()

	return cmd.sweep(context.Background(), app, time.Now().UTC())
}

func (cmd *SweepOverdueCommand) sweep(ctx context.Context, app *entrypoint.App, now time.Time) error {
	closed, err := app.Borrows.ExpireOverdue(ctx, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.out, "Closed %d overdue borrows\n", closed)
	return nil
}
