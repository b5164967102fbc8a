package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the console and blocks until the user quits
func Run(ctx context.Context, res Resolver, c Corpus) error {
	p := tea.NewProgram(NewChatModel(ctx, res, c), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run console: %w", err)
	}
	return nil
}
