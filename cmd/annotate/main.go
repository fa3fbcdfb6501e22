package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "annotate",
		Short: "Generate annotations for classical Chinese poems",
		Long: `annotate asks a language model for a vernacular translation, the creative
background and an appreciation of each poem in a batch.

When no model backend answers its health probe, every poem receives a
placeholder annotation so the output file is always produced.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
