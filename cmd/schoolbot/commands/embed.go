package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	embedQA    bool
	embedPages bool
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Bring stored QA and page vectors up to date",
	Long: `embed computes vectors for QA questions and crawled pages whose text changed
since they were last embedded, and prunes vectors whose source row is gone.`,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().BoolVar(&embedQA, "qa", true, "embed QA questions")
	embedCmd.Flags().BoolVar(&embedPages, "pages", true, "embed crawled pages")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.CheckProvider(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if embedQA {
		st, err := a.Builder.BuildQA(ctx)
		if err != nil {
			return fmt.Errorf("qa embeddings: %w", err)
		}
		fmt.Fprintf(out, "qa:    %s (%s)\n", st, st.Duration)
	}
	if embedPages {
		st, err := a.Builder.BuildPages(ctx)
		if err != nil {
			return fmt.Errorf("page embeddings: %w", err)
		}
		fmt.Fprintf(out, "pages: %s (%s)\n", st, st.Duration)
	}
	return nil
}
