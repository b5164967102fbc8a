package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print table row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.Store.Counts(cmd.Context())
		if err != nil {
			return fmt.Errorf("count tables: %w", err)
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			return json.NewEncoder(out).Encode(counts)
		}
		fmt.Fprintf(out, "qa entries:      %d\n", counts.QAEntries)
		fmt.Fprintf(out, "qa embeddings:   %d\n", counts.QAEmbeddings)
		fmt.Fprintf(out, "pages:           %d\n", counts.Pages)
		fmt.Fprintf(out, "page embeddings: %d\n", counts.PageEmbeddings)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print counts as JSON")
	rootCmd.AddCommand(statsCmd)
}
