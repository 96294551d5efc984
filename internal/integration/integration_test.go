package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"vocab-battle/internal/app"
	"vocab-battle/internal/battle"
	"vocab-battle/internal/cli"
	"vocab-battle/internal/domain"
	pgloader "vocab-battle/internal/infra/postgres"
	infraredis "vocab-battle/internal/infra/redis"
)

var (
	alice = domain.Identity{ID: "u1", Name: "Alice"}
	bob   = domain.Identity{ID: "u2", Name: "Bob"}
)

func TestRoomBattleOverRedisWithPostgresVocabulary(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	if err := cli.RunMigrations(ctx, pgURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewVocabularyLoader(pool)
	seeded, err := loader.LoadWords(ctx)
	if err != nil {
		t.Fatalf("load words: %v", err)
	}
	if len(seeded) != 20 || seeded[0].ID != "sat-001" {
		t.Fatalf("expected 20 seeded words ordered by id, got %d", len(seeded))
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	words := infraredis.NewVocabularyRepository(redisClient, loader, 5*time.Minute)
	rooms := infraredis.NewRoomStore(redisClient, infraredis.NewPubSubNotifier(redisClient), 5*time.Minute)
	machine := battle.Machine{Timing: battle.Timing{
		QuestionSeconds: 20,
		Tick:            50 * time.Millisecond,
		AnswerSettle:    10 * time.Millisecond,
		TimeoutSettle:   10 * time.Millisecond,
	}}
	service := app.NewBattleService(rooms, words, machine, nil)
	service.QuestionCount = 3

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	room, err := service.CreateRoom(runCtx, alice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.JoinRoom(runCtx, room.Code, bob); err != nil {
		t.Fatalf("join: %v", err)
	}
	hostRunner, err := service.OpenRoom(runCtx, alice, room.Code)
	if err != nil {
		t.Fatalf("open host: %v", err)
	}
	guestRunner, err := service.OpenRoom(runCtx, bob, room.Code)
	if err != nil {
		t.Fatalf("open guest: %v", err)
	}
	go answerAll(runCtx, hostRunner, func(q domain.Question) string { return q.Correct })
	go answerAll(runCtx, guestRunner, func(q domain.Question) string {
		if q.WordID == room.Questions[0].WordID {
			return q.Correct
		}
		for _, opt := range q.Options {
			if opt != q.Correct {
				return opt
			}
		}
		return ""
	})

	type outcome struct {
		res domain.Result
		err error
	}
	hostDone, guestDone := make(chan outcome, 1), make(chan outcome, 1)
	go func() { res, err := hostRunner.Run(runCtx); hostDone <- outcome{res, err} }()
	go func() { res, err := guestRunner.Run(runCtx); guestDone <- outcome{res, err} }()

	h, g := <-hostDone, <-guestDone
	if h.err != nil || g.err != nil {
		t.Fatalf("run errors: host %v guest %v", h.err, g.err)
	}
	if h.res.Outcome != domain.OutcomeWin || h.res.MyScore != 3 || h.res.OpponentScore != 1 {
		t.Fatalf("unexpected host result %+v", h.res)
	}
	if g.res.Outcome != domain.OutcomeLose || g.res.OpponentName != alice.Name {
		t.Fatalf("unexpected guest result %+v", g.res)
	}

	final, err := rooms.Get(runCtx, room.Code)
	if err != nil {
		t.Fatalf("get final: %v", err)
	}
	if final.Status != domain.StatusFinished || final.CurrentIndex != 2 {
		t.Fatalf("unexpected final room %+v", final)
	}
	ttl, err := redisClient.TTL(runCtx, "battle:room:"+room.Code).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected room ttl, got %v (%v)", ttl, err)
	}

	service.Leave(runCtx, room.Code)
	if _, err := rooms.Get(runCtx, room.Code); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room removed, got %v", err)
	}
}

func answerAll(ctx context.Context, r *battle.Runner, pick func(domain.Question) string) {
	answered := -1
	for v := range r.Views() {
		if v.Phase != battle.PhasePlaying || v.Resolved || v.Index == answered {
			continue
		}
		q, ok := v.Current()
		if !ok {
			continue
		}
		answered = v.Index
		if err := r.Answer(ctx, pick(q)); err != nil {
			return
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "battle", "POSTGRES_PASSWORD": "battlepass", "POSTGRES_DB": "vocab"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://battle:battlepass@%s:%s/vocab?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
