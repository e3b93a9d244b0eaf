package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/backtrue/fbaudai/ai"
	"github.com/backtrue/fbaudai/config"
	"github.com/backtrue/fbaudai/meta"
	"github.com/backtrue/fbaudai/storage"
	"github.com/backtrue/fbaudai/vision"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.CheckRequired(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	encryptionKey, err := storage.DeriveKey(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}

	store, err := storage.NewSQLiteStore(cfg.DatabasePath, encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DatabasePath).Msg("store initialized")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := newChatProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize chat provider")
	}
	log.Info().Str("provider", cfg.AIProvider).Msg("chat provider initialized")

	annotator := vision.NewGoogleAnnotator(vision.GoogleAnnotatorOpts{
		BaseURL: cfg.GoogleVisionBaseURL,
		APIKey:  cfg.GoogleVisionAPIKey,
	})

	pipeline := ai.NewPipeline(ai.NewGateway(provider), annotator, cfg.Models())

	tokens := meta.NewTokenManager(meta.TokenManagerOpts{
		BaseURL:      cfg.GraphBaseURL,
		Store:        store,
		AppID:        cfg.FacebookAppID,
		AppSecret:    cfg.FacebookAppSecret,
		InitialToken: cfg.MetaAccessToken,
	})
	if err := tokens.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("marketing api token initialization failed")
	}

	audiences := meta.NewClient(cfg.GraphBaseURL, tokens)
	verifier := NewSSOVerifier(cfg.AuthVerifyURL)

	server := NewServer(pipeline, store, audiences, tokens, verifier)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := tokens.RunAutoRefresh(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

// newChatProvider selects the LLM backend. Both implement the same chat
// surface; model candidate lists stay provider-agnostic.
func newChatProvider(ctx context.Context, cfg *config.Config) (ai.ChatProvider, error) {
	switch cfg.AIProvider {
	case config.ProviderGemini:
		return ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
	default:
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey), nil
	}
}
