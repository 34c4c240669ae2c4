package main

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nevindra/courier/chunk"
	"github.com/nevindra/courier/twiml"
)

var (
	splitBudget int
	splitTwiML  bool
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split stdin into carrier-sized segments",
	Long: `Reads a reply from stdin and prints the segments it would be sent as.
With --twiml, prints the full webhook response instead.`,
	Args: cobra.NoArgs,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().IntVar(&splitBudget, "budget", chunk.DefaultBudget, "max bytes per segment")
	splitCmd.Flags().BoolVar(&splitTwiML, "twiml", false, "print the TwiML document")
}

func runSplit(cmd *cobra.Command, args []string) error {
	if splitBudget < utf8.UTFMax {
		return fmt.Errorf("--budget must be at least %d bytes", utf8.UTFMax)
	}
	in, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	out := cmd.OutOrStdout()
	if splitTwiML {
		_, err := fmt.Fprintln(out, string(twiml.Assemble(twiml.PlainText(string(in)), splitBudget)))
		return err
	}

	segments := chunk.Split(string(in), splitBudget)
	yellow := color.New(color.FgYellow)
	for i, seg := range segments {
		yellow.Fprintf(out, "--- segment %d/%d (%d bytes)\n", i+1, len(segments), len(seg))
		fmt.Fprintln(out, seg)
	}
	return nil
}
