package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schoolbot/schoolbot/internal/webhook"
)

var (
	serveAddr  string
	serveEmbed bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat skill webhook server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveEmbed, "embed", false, "bring stored vectors up to date before loading the corpus")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	logger := a.Logger

	if err := a.Store.Migrate(ctx); err != nil {
		logger.Warn().Err(err).Msg("migration check failed")
	}
	if err := a.CheckProvider(ctx); err != nil {
		logger.Warn().Err(err).Msg("embedding model unavailable; semantic and link stages will fall through")
	}

	if serveEmbed {
		if st, err := a.Builder.BuildQA(ctx); err != nil {
			logger.Error().Err(err).Msg("qa embedding build failed")
		} else {
			logger.Info().Str("stats", st.String()).Msg("qa embeddings built")
		}
		if st, err := a.Builder.BuildPages(ctx); err != nil {
			logger.Error().Err(err).Msg("page embedding build failed")
		} else {
			logger.Info().Str("stats", st.String()).Msg("page embeddings built")
		}
	}

	if _, err := a.Corpus.Refresh(ctx); err != nil {
		// serve the empty snapshot; the refresh loop retries
		logger.Error().Err(err).Msg("failed to load corpus")
	}
	go a.Corpus.Run(ctx, cfg.Corpus.RefreshInterval)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      webhook.NewServer(a.Resolver, a.Corpus, a.Store, logger).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("webhook server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
