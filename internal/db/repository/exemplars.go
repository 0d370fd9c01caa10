package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"datachat/internal/domain"
	"datachat/internal/textnorm"
)

// maxExemplarScan bounds how many stored examples one lookup scores.
const maxExemplarScan = 500

// ExemplarRepo stores dialogue examples for few-shot prompting and serves
// nearest-neighbor lookups by word-set similarity. It implements
// domain.ExemplarStore.
type ExemplarRepo struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

var _ domain.ExemplarStore = (*ExemplarRepo)(nil)

func NewExemplarRepo(readDB, writeDB *sql.DB) *ExemplarRepo {
	return &ExemplarRepo{readDB: readDB, writeDB: writeDB}
}

// Add stores one example.
func (r *ExemplarRepo) Add(ctx context.Context, ex *domain.Example) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	_, err := r.writeDB.ExecContext(ctx, `
		INSERT INTO exemplars (id, question, normalized_question, answer, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Question, textnorm.Normalize(ex.Question), ex.Answer, ex.Kind, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert exemplar: %w", err)
	}
	return nil
}

// NearestExamples returns the k stored examples most similar to the text,
// most similar first. Examples with no word overlap are excluded.
func (r *ExemplarRepo) NearestExamples(ctx context.Context, text string, k int) ([]domain.Example, error) {
	if k <= 0 {
		return nil, nil
	}
	norm := textnorm.Normalize(text)
	if norm == "" {
		return nil, nil
	}

	rows, err := r.readDB.QueryContext(ctx, `
		SELECT id, question, normalized_question, answer, kind
		FROM exemplars
		ORDER BY created_at DESC
		LIMIT ?`, maxExemplarScan)
	if err != nil {
		return nil, fmt.Errorf("load exemplars: %w", err)
	}
	defer rows.Close()

	type scored struct {
		ex    domain.Example
		score float64
	}
	var candidates []scored
	for rows.Next() {
		var (
			ex       domain.Example
			exemNorm string
		)
		if err := rows.Scan(&ex.ID, &ex.Question, &exemNorm, &ex.Answer, &ex.Kind); err != nil {
			return nil, fmt.Errorf("scan exemplar: %w", err)
		}
		if score := textnorm.Jaccard(norm, exemNorm); score > 0 {
			candidates = append(candidates, scored{ex: ex, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]domain.Example, len(candidates))
	for i, c := range candidates {
		out[i] = c.ex
	}
	return out, nil
}
