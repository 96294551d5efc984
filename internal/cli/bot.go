package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vocab-battle/internal/app"
	"vocab-battle/internal/battle"
	"vocab-battle/internal/config"
	"vocab-battle/internal/domain"
	transport "vocab-battle/internal/transport/http"
)

// NewBotCmd plays one room contest against a running gateway, as host or as guest.
func NewBotCmd(configPath *string) *cobra.Command {
	var (
		server   string
		join     string
		name     string
		accuracy float64
		think    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Play a battle room as an automated participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if accuracy < 0 || accuracy > 1 {
				return fmt.Errorf("accuracy must be within [0, 1]")
			}
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			self := domain.Identity{ID: uuid.NewString(), Name: name}
			p := &botPlayer{
				opponent: battle.NewOpponent(nil),
				accuracy: accuracy,
				think:    think,
			}
			res, err := p.play(ctx, cfg, server, self, join)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d-%d against %s\n", res.Outcome, res.MyScore, res.OpponentScore, res.OpponentName)
			if res.Abandoned {
				fmt.Fprintln(cmd.OutOrStdout(), "opponent left the room")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "ws://localhost:8080", "gateway base url")
	cmd.Flags().StringVar(&join, "join", "", "room code to join; a new room is created when empty")
	cmd.Flags().StringVar(&name, "name", "Bot", "display name")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0.8, "probability of picking the correct definition")
	cmd.Flags().DurationVar(&think, "think", time.Second, "delay before answering each question")
	return cmd
}

type botPlayer struct {
	opponent *battle.BernoulliOpponent
	accuracy float64
	think    time.Duration
}

func (p *botPlayer) play(ctx context.Context, cfg config.Config, server string, self domain.Identity, join string) (domain.Result, error) {
	client, err := transport.Dial(ctx, server, self)
	if err != nil {
		return domain.Result{}, err
	}
	defer client.Close()

	machine := battle.Machine{Timing: timingFrom(cfg), Opponent: p.opponent}
	svc := app.NewBattleService(client, client, machine, nil)
	svc.QuestionCount = config.IntOr(cfg.Battle.QuestionCount, svc.QuestionCount)

	code := join
	if code == "" {
		room, err := svc.CreateRoom(ctx, self)
		if err != nil {
			return domain.Result{}, err
		}
		code = room.Code
		log.Info().Str("room", code).Msg("room created, waiting for a guest")
	} else if _, err := svc.JoinRoom(ctx, code, self); err != nil {
		return domain.Result{}, err
	}

	runner, err := svc.OpenRoom(ctx, self, code)
	if err != nil {
		return domain.Result{}, err
	}
	go p.answer(ctx, runner)
	return runner.Run(ctx)
}

// answer picks one option per question after the think delay, correct with probability accuracy.
func (p *botPlayer) answer(ctx context.Context, runner *battle.Runner) {
	answered := -1
	for v := range runner.Views() {
		if v.Phase != battle.PhasePlaying || v.Resolved || v.Index == answered {
			continue
		}
		q, ok := v.Current()
		if !ok {
			continue
		}
		answered = v.Index

		select {
		case <-ctx.Done():
			return
		case <-runner.Done():
			return
		case <-time.After(p.think):
		}
		if cur := runner.View(); cur.Index != v.Index || cur.Resolved {
			continue
		}

		option := q.Correct
		if !p.opponent.Draw(p.accuracy) {
			option = wrongOption(q)
		}
		log.Debug().Int("index", v.Index).Bool("correct", q.IsCorrect(option)).Msg("bot answering")
		if err := runner.Answer(ctx, option); err != nil {
			return
		}
	}
}

func wrongOption(q domain.Question) string {
	var wrong []string
	for _, opt := range q.Options {
		if opt != q.Correct {
			wrong = append(wrong, opt)
		}
	}
	if len(wrong) == 0 {
		return ""
	}
	return wrong[battle.DefaultRand.Intn(len(wrong))]
}

// timingFrom overlays configured countdown and settle delays on the defaults.
func timingFrom(cfg config.Config) battle.Timing {
	t := battle.DefaultTiming()
	t.QuestionSeconds = config.IntOr(cfg.Battle.QuestionSeconds, t.QuestionSeconds)
	t.AnswerSettle = config.TTLDuration(cfg.Battle.AnswerSettle, t.AnswerSettle)
	t.TimeoutSettle = config.TTLDuration(cfg.Battle.TimeoutSettle, t.TimeoutSettle)
	return t
}
