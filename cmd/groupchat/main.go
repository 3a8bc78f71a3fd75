package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/farum-groupchat/internal/adapters/http"
	"github.com/PabloGalante/farum-groupchat/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/farum-groupchat/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-groupchat/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-groupchat/internal/adapters/storage/personafile"
	"github.com/PabloGalante/farum-groupchat/internal/adapters/tui"
	"github.com/PabloGalante/farum-groupchat/internal/app/gateway"
	"github.com/PabloGalante/farum-groupchat/internal/app/groupchat"
	"github.com/PabloGalante/farum-groupchat/internal/config"
	"github.com/PabloGalante/farum-groupchat/internal/domain"
	"github.com/PabloGalante/farum-groupchat/internal/observability"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	port         string
	personasFile string
	mock         bool
	logFile      string
}

func newRootCommand() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:          "groupchat",
		Short:        "Group chat between one human and several AI personas",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.personasFile, "personas", "", "YAML persona library (overrides GROUPCHAT_PERSONAS_FILE)")
	root.PersistentFlags().BoolVar(&f.mock, "mock", false, "use the mock LLM instead of Gemini")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	serve.Flags().StringVar(&f.port, "port", "", "listen port (overrides GROUPCHAT_PORT)")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the personas in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), f)
		},
	}
	chat.Flags().StringVar(&f.logFile, "log-file", "groupchat.log", "where to write logs while the UI owns the terminal")

	root.AddCommand(serve, chat)
	return root
}

func loadConfig(f flags) (*config.Config, error) {
	if f.mock {
		if err := os.Setenv("GROUPCHAT_USE_MOCK_LLM", "1"); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if f.personasFile != "" {
		cfg.PersonasFile = f.personasFile
	}
	if f.port != "" {
		cfg.Port = f.port
	}
	return cfg, nil
}

// buildService wires the LLM backend, persona library and orchestrator.
func buildService(ctx context.Context, cfg *config.Config) (*groupchat.Service, func(), error) {
	log := observability.Logger()
	cleanup := func() {}

	var llmClient domain.LLMClient
	if cfg.UseMockLLM {
		log.Info("using mock LLM client")
		llmClient = llm.NewMockLLM()
	} else {
		log.Info("using Gemini LLM client", "model", cfg.ModelName)
		gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Project:   cfg.GCPProjectID,
			Location:  cfg.GCPLocation,
			ModelName: cfg.ModelName,
			Timeout:   cfg.LLMTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Gemini client: %w", err)
		}
		llmClient = gemini
	}

	seed := personafile.Defaults()
	if cfg.PersonasFile != "" {
		loaded, err := personafile.Load(cfg.PersonasFile)
		if err != nil {
			return nil, nil, err
		}
		seed = loaded
	}

	var personas domain.PersonaStore
	switch cfg.StorageBackend {
	case "firestore":
		log.Info("using Firestore persona library", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		if err := fs.Seed(ctx, seed); err != nil {
			_ = fs.Close()
			return nil, nil, err
		}
		personas = fs
		cleanup = func() { _ = fs.Close() }
	default:
		log.Info("using in-memory persona library", "personas_count", len(seed))
		personas = memstore.NewPersonaStore(seed...)
	}

	gw := gateway.New(llmClient, gateway.Config{Language: cfg.ReplyLanguage})
	orch := groupchat.NewOrchestrator(gw, groupchat.OrchestratorConfig{
		ThinkMin: cfg.ThinkMin,
		ThinkMax: cfg.ThinkMax,
		Policy:   groupchat.TurnPolicy(cfg.TurnPolicy),
	})
	svc := groupchat.NewService(personas, orch, groupchat.DefaultUser())

	return svc, func() {
		svc.Close()
		cleanup()
	}, nil
}

func runServe(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	observability.Setup(os.Stdout, cfg.LogLevel)
	log := observability.Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info("group chat API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		return err
	}
	return nil
}

func runChat(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logOut, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logOut.Close()
	observability.Setup(logOut, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	conv, err := svc.CreateConversation(ctx, groupchat.CreateConversationInput{})
	if err != nil {
		return err
	}
	return tui.Run(ctx, svc, conv)
}
