package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mirai-edu/tutorflow/internal/profile"
	"github.com/mirai-edu/tutorflow/plugin/agent"
	"github.com/mirai-edu/tutorflow/plugin/gate"
	"github.com/mirai-edu/tutorflow/plugin/llm"
	"github.com/mirai-edu/tutorflow/plugin/sessionlog"
	"github.com/mirai-edu/tutorflow/plugin/workflow"
	"github.com/mirai-edu/tutorflow/server"
	"github.com/mirai-edu/tutorflow/store"
	"github.com/mirai-edu/tutorflow/store/db"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "tutorflow",
	Short: "Safety-gated tutoring pipeline server",
	RunE: func(_ *cobra.Command, _ []string) error {
		p := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version,
		}
		p.FromEnv()
		if err := p.Validate(); err != nil {
			return err
		}

		setupLogger(p)
		return run(p)
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `server mode, "dev" or "prod"`)
	rootCmd.PersistentFlags().String("addr", "", "binding address")
	rootCmd.PersistentFlags().Int("port", 0, "binding port")
	rootCmd.PersistentFlags().String("driver", "", `database driver, "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database connection string")

	for _, flag := range []string{"mode", "addr", "port", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("tutorflow")
	viper.AutomaticEnv()
}

func run(p *profile.Profile) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return fmt.Errorf("create db driver: %w", err)
	}
	st := store.New(dbDriver)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	sessionLog, err := newSessionLog(ctx, p)
	if err != nil {
		return fmt.Errorf("create session log: %w", err)
	}

	caller := agent.NewClient(agent.Config{
		Endpoints:      p.AgentEndpoints,
		ConnectTimeout: p.AgentConnectTimeout,
		ReadTimeout:    p.AgentReadTimeout,
		MaxAttempts:    p.AgentMaxAttempts,
	})

	var chatter workflow.Chatter
	if p.IsLLMFallbackEnabled() {
		provider, err := llm.NewProvider(&llm.Config{
			BaseURL:   p.LLMBaseURL,
			APIKey:    p.LLMAPIKey,
			ChatModel: p.LLMModel,
		})
		if err != nil {
			return fmt.Errorf("create llm provider: %w", err)
		}
		chatter = provider
	}

	sessions := workflow.NewSessionWorkflow(caller, sessionLog, st)
	natural := workflow.NewNaturalWorkflow(caller, sessionLog, chatter)
	analytics := workflow.NewAnalyticsWorkflow(st)
	dispatcher := workflow.NewDispatcher(caller, sessions, natural, analytics)
	pipeline := workflow.NewPipeline(gate.New(caller), dispatcher)

	srv := server.NewServer(p, st, pipeline, sessions, analytics)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.Shutdown(context.Background())
		return nil
	})
	return g.Wait()
}

// newSessionLog picks the Redis-backed log when an address is
// configured, otherwise the in-process log.
func newSessionLog(ctx context.Context, p *profile.Profile) (sessionlog.Log, error) {
	if p.RedisAddr == "" {
		slog.Info("using in-memory session log")
		return sessionlog.NewMemoryLog(p.SessionWindow, p.SessionTTL), nil
	}
	slog.Info("using redis session log", "addr", p.RedisAddr)
	return sessionlog.NewRedisLog(ctx, sessionlog.RedisConfig{
		Addr:     p.RedisAddr,
		Password: p.RedisPassword,
		DB:       p.RedisDB,
		Window:   p.SessionWindow,
		TTL:      p.SessionTTL,
	})
}

func setupLogger(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
