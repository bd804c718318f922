package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/config"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
	pgloader "quiz-live-service/internal/infra/postgres"
	redisstore "quiz-live-service/internal/infra/redis"
	"quiz-live-service/internal/infra/sqlite"
	xlog "quiz-live-service/internal/log"
	"quiz-live-service/internal/scoring"
	transport "quiz-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// loadConfig reads the config file and configures logging from it.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	level := logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	xlog.Configure(xlog.Config{Level: level})
	return cfg, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := xlog.WithComponent("server")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	loader, closeLoader, err := buildLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLoader()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var quizRepo app.QuizRepository
	var store app.SessionRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		store = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	defaults := app.DefaultOptions()
	service := app.NewSessionService(store, quizRepo, app.Options{
		Countdown:        config.TTLDuration(cfg.Session.Countdown, defaults.Countdown),
		MaxActivePerQuiz: cfg.Session.MaxActivePerQuiz,
		MaxAutoStart:     cfg.Session.MaxAutoStart,
		ScorePrecision:   cfg.Session.Precision(scoring.DefaultPrecision),
	})
	players := app.NewPlayerGateway(service)
	router := transport.NewRouter(transport.NewAPI(service, players), transport.NewWSHandler(service, players))

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("starting live quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpErr := server.Shutdown(shutdownCtx)
		return errors.Join(httpErr, service.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// buildLoader picks the quiz source: Postgres, then sqlite, then the
// built-in sample catalogue.
func buildLoader(ctx context.Context, cfg config.Config) (memory.QuizLoader, func(), error) {
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return pgloader.NewQuizLoader(pool), pool.Close, nil
	case cfg.SQLite.Path != "":
		loader, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return loader, func() { _ = loader.Close() }, nil
	default:
		logger := xlog.WithComponent("server")
		logger.Warn().Msg("no quiz store configured, serving the built-in sample quiz")
		return memory.NewStaticQuizLoader(sampleQuizzes()), func() {}, nil
	}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample": {
			ID:      "sample",
			OwnerID: "demo",
			Name:    "Warm-up",
			Questions: []domain.Question{
				{
					ID:       1,
					Prompt:   "What is 2 + 2?",
					Duration: 20,
					Points:   10,
					Answers: []domain.Answer{
						{ID: 1, Text: "3", Colour: "red"},
						{ID: 2, Text: "4", Colour: "blue", Correct: true},
						{ID: 3, Text: "5", Colour: "green"},
					},
				},
				{
					ID:       2,
					Prompt:   "Which are primary colours?",
					Duration: 30,
					Points:   20,
					Answers: []domain.Answer{
						{ID: 4, Text: "Red", Colour: "red", Correct: true},
						{ID: 5, Text: "Blue", Colour: "blue", Correct: true},
						{ID: 6, Text: "Purple", Colour: "purple"},
					},
				},
			},
		},
	}
}
