package cli

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"vocab-battle/internal/battle"
	"vocab-battle/internal/domain"
)

// NewSimulateCmd plays many solo contests against the simulated opponent and reports
// the empirical mean score, to check a tier against its configured accuracy.
func NewSimulateCmd() *cobra.Command {
	var (
		difficulty string
		questions  int
		runs       int
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Sample opponent scores for a difficulty tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			if questions <= 0 || runs <= 0 {
				return fmt.Errorf("questions and runs must be positive")
			}
			d := domain.ParseDifficulty(difficulty)

			var rnd *rand.Rand
			if cmd.Flags().Changed("seed") {
				rnd = rand.New(rand.NewSource(seed))
			}
			scores := battle.SimulateOpponentScores(battle.NewOpponent(rnd), d, questions, runs)
			mean := battle.MeanScore(scores)
			expected := battle.Accuracy(d) * float64(questions)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "difficulty: %s\n", d)
			fmt.Fprintf(out, "runs:       %d x %d questions\n", runs, questions)
			fmt.Fprintf(out, "mean score: %.3f (expected %.3f)\n", mean, expected)
			return nil
		},
	}
	cmd.Flags().StringVar(&difficulty, "difficulty", string(domain.DifficultyMedium), "easy, medium or hard")
	cmd.Flags().IntVar(&questions, "questions", battle.BattleQuestionCount, "questions per contest")
	cmd.Flags().IntVar(&runs, "runs", 10000, "number of simulated contests")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: time based)")
	return cmd
}
