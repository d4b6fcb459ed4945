package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/sidekick/ai/embedding"
	"github.com/hrygo/sidekick/ai/generation"
	"github.com/hrygo/sidekick/ai/knowledge"
	"github.com/hrygo/sidekick/ai/llm"
	"github.com/hrygo/sidekick/ai/vector"
	"github.com/hrygo/sidekick/ai/vector/memory"
	"github.com/hrygo/sidekick/ai/vector/qdrant"
	"github.com/hrygo/sidekick/internal/profile"
	"github.com/hrygo/sidekick/internal/version"
	"github.com/hrygo/sidekick/server"
	apiv1 "github.com/hrygo/sidekick/server/router/api/v1"
	"github.com/hrygo/sidekick/store"
	"github.com/hrygo/sidekick/store/db/postgres"
	"github.com/hrygo/sidekick/store/db/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: `A personal AI assistant with a private knowledge base. Chat with your documents using local or hosted models.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Ignore a missing .env file, everything can come from real env vars.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		api, cleanup, err := buildServices(ctx, instanceProfile)
		if err != nil {
			slog.Error("failed to build services", "error", err)
			return
		}
		defer cleanup()

		s, err := server.NewServer(ctx, instanceProfile, api)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by most process
		// managers, eg. Kubernetes and systemd.
		signal.Notify(c, terminationSignals...)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				cancel()
			}
		}

		<-ctx.Done()
	},
}

// buildServices constructs the gateways and domain services from the profile.
// The returned cleanup closes everything that holds a connection.
func buildServices(ctx context.Context, p *profile.Profile) (*apiv1.APIV1Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	embedder, err := embedding.NewService(&embedding.Config{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Dimensions: p.EmbeddingDimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create embedding gateway: %w", err)
	}

	vectorStore, err := newVectorStore(ctx, p)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create vector store: %w", err)
	}
	closers = append(closers, func() { _ = vectorStore.Close() })

	llmService, err := llm.NewService(&llm.Config{
		Provider:    p.LLMProvider,
		Model:       p.LLMModel,
		APIKey:      p.LLMAPIKey,
		BaseURL:     p.LLMBaseURL,
		MaxTokens:   p.LLMMaxTokens,
		Temperature: p.LLMTemperature,
		Timeout:     p.LLMTimeout,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create llm gateway: %w", err)
	}

	var orchestratorOpts []generation.Option
	if p.PersonaFile != "" {
		instructions, err := generation.LoadPersona(p.PersonaFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		orchestratorOpts = append(orchestratorOpts, generation.WithPersona(instructions))
	}

	var conversationDriver store.Driver
	if p.ConversationDSN != "" {
		db, err := sqlite.NewDB(ctx, p.ConversationDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open conversation db: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		conversationDriver = db
	}

	api := &apiv1.APIV1Service{
		Profile: p,
		Knowledge: knowledge.NewService(vectorStore, embedder, knowledge.Config{
			ChunkSize:           p.ChunkSize,
			ChunkOverlap:        p.ChunkOverlap,
			TopK:                p.TopKResults,
			SimilarityThreshold: p.SimilarityThreshold,
		}),
		Orchestrator:  generation.NewOrchestrator(llmService, orchestratorOpts...),
		Conversations: store.NewManager(ctx, conversationDriver),
		LLM:           llmService,
		VectorStore:   vectorStore,
	}
	return api, cleanup, nil
}

func newVectorStore(ctx context.Context, p *profile.Profile) (vector.Store, error) {
	switch p.VectorDriver {
	case "postgres":
		return postgres.NewDB(ctx, p.VectorDSN, p.EmbeddingDimensions)
	case "qdrant":
		return qdrant.New(ctx, &qdrant.Config{
			Host:       p.QdrantHost,
			Port:       p.QdrantPort,
			Collection: p.QdrantCollection,
			Dimension:  p.EmbeddingDimensions,
		})
	default:
		return memory.New(p.EmbeddingDimensions), nil
	}
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8000)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8000, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")

	for _, flag := range []string{"mode", "addr", "port", "data"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("sidekick")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Sidekick %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Vector driver: %s\n", profile.VectorDriver)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Access Sidekick at: http://localhost:%d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
