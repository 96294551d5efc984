package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"vocab-battle/internal/domain"
)

// VocabularyLoader loads the word pool from Postgres.
type VocabularyLoader struct {
	pool *pgxpool.Pool
}

func NewVocabularyLoader(pool *pgxpool.Pool) *VocabularyLoader {
	return &VocabularyLoader{pool: pool}
}

func (l *VocabularyLoader) LoadWords(ctx context.Context) ([]domain.VocabularyWord, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, word, definition FROM vocabulary_words ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load words: %w", err)
	}
	defer rows.Close()

	var words []domain.VocabularyWord
	for rows.Next() {
		var w domain.VocabularyWord
		if err := rows.Scan(&w.ID, &w.Word, &w.Definition); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load words: %w", err)
	}
	return words, nil
}
