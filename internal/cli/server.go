package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vocab-battle/internal/app"
	"vocab-battle/internal/config"
	"vocab-battle/internal/infra/memory"
	natsinfra "vocab-battle/internal/infra/nats"
	pgloader "vocab-battle/internal/infra/postgres"
	redisinfra "vocab-battle/internal/infra/redis"
	transport "vocab-battle/internal/transport/http"
)

const (
	defaultRoomTTL       = 30 * time.Minute
	defaultVocabularyTTL = 10 * time.Minute
	dailyRecordTTL       = 30 * 24 * time.Hour
	reapInterval         = time.Minute
)

// NewStartCmd builds the CLI subcommand to start the room gateway.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle room gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			portFlag := ""
			if cmd.Flags().Changed("port") || os.Getenv("PORT") != "" {
				portFlag = *port
			}
			return runServer(cmd.Context(), *configPath, portFlag)
		},
	}
}

type backends struct {
	rooms app.RoomStore
	words app.VocabularyRepository
	daily app.DailyStore
	close func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Postgres.URL != "" {
		if err := RunMigrations(ctx, cfg.Postgres.URL); err != nil {
			return err
		}
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	daily := app.NewDailyService(b.daily, b.words, nil)
	daily.QuestionCount = config.IntOr(cfg.Battle.DailyQuestionCount, daily.QuestionCount)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(b.rooms, b.words).ServeWS)
	mux.Handle("/daily", transport.NewDailyHandler(daily))

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting battle gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// openBackends picks Redis (with Pub/Sub or NATS notifications) when redis.addr is set,
// otherwise in-memory stores with a reaper, and Postgres or the built-in word list.
func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	var closers []func()
	b := &backends{close: func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}}

	var loader memory.WordLoader = memory.NewStaticWordLoader(sampleVocabulary())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		loader = pgloader.NewVocabularyLoader(pool)
	}

	roomTTL := config.TTLDuration(cfg.Redis.TTL, defaultRoomTTL)
	vocabTTL := config.TTLDuration(cfg.Vocabulary.TTL, defaultVocabularyTTL)

	if cfg.Redis.Addr == "" {
		rooms := memory.NewRoomStore(clockwork.NewRealClock(), roomTTL)
		go rooms.RunReaper(ctx, reapInterval)
		b.rooms = rooms
		b.words = memory.NewVocabularyRepository(loader, vocabTTL, nil)
		b.daily = memory.NewDailyStore()
		log.Info().Msg("using in-memory room store")
		return b, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers = append(closers, func() { client.Close() })

	var notifier redisinfra.Notifier = redisinfra.NewPubSubNotifier(client)
	if cfg.NATS.URL != "" {
		nc, err := natsinfra.Connect(cfg.NATS.URL)
		if err != nil {
			b.close()
			return nil, err
		}
		closers = append(closers, nc.Close)
		notifier = natsinfra.NewNotifier(nc, cfg.NATS.Subject)
		log.Info().Str("url", cfg.NATS.URL).Msg("room notifications over NATS")
	}

	b.rooms = redisinfra.NewRoomStore(client, notifier, roomTTL)
	b.words = redisinfra.NewVocabularyRepository(client, loader, vocabTTL)
	b.daily = redisinfra.NewDailyStore(client, dailyRecordTTL)
	log.Info().Str("addr", cfg.Redis.Addr).Dur("room_ttl", roomTTL).Msg("using redis room store")
	return b, nil
}
