package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schoolbot/schoolbot/internal/resolver"
	"github.com/schoolbot/schoolbot/internal/textnorm"
	"github.com/schoolbot/schoolbot/internal/tui"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question, or open the console when none is given",
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Corpus.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}

	if len(args) == 0 {
		return tui.Run(ctx, a.Resolver, a.Corpus)
	}

	res := a.Resolver.Resolve(ctx, a.Corpus.Current(), resolver.Request{
		Utterance: strings.Join(args, " "),
		UserID:    "cli",
	})

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, res)
	return nil
}

func printResult(w io.Writer, res *resolver.Result) {
	switch {
	case res.IsAnswer():
		body, link := res.Text, res.Link
		if link == "" {
			body, link = textnorm.SplitLink(res.Text)
		}
		fmt.Fprintln(w, body)
		if link != "" {
			fmt.Fprintf(w, "  → %s\n", link)
		}
	case res.Kind == resolver.KindLinkCards:
		for i, c := range res.Cards {
			fmt.Fprintf(w, "%d. %s (%.2f)\n   %s\n   %s\n", i+1, c.Title, c.Score, c.URL, c.Snippet)
		}
	default:
		fmt.Fprintln(w, res.Text)
		if res.Hint != "" {
			fmt.Fprintln(w, res.Hint)
		}
	}
	fmt.Fprintf(w, "[%s score=%.2f stage=%s elapsed=%s]\n", res.Kind, res.Score, res.Stage, res.Elapsed)
}
