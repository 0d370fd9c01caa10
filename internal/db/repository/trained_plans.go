package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"datachat/internal/domain"
	"datachat/internal/textnorm"
)

// TrainedPlanRepo persists question→plan associations. It implements
// domain.TrainedPlanStore. Entries are append-only.
type TrainedPlanRepo struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

var _ domain.TrainedPlanStore = (*TrainedPlanRepo)(nil)

func NewTrainedPlanRepo(readDB, writeDB *sql.DB) *TrainedPlanRepo {
	return &TrainedPlanRepo{readDB: readDB, writeDB: writeDB}
}

// Append writes one entry. A missing ID gets a generated UUID; a missing
// normalized question is derived from the question text.
func (r *TrainedPlanRepo) Append(ctx context.Context, entry *domain.TrainedPlanEntry) error {
	if entry.Plan == nil {
		return domain.ErrValidation("trained plan entry requires a plan document")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.NormalizedQuestion == "" {
		entry.NormalizedQuestion = textnorm.Normalize(entry.Question)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	planJSON, err := json.Marshal(entry.Plan)
	if err != nil {
		return fmt.Errorf("marshal trained plan: %w", err)
	}

	_, err = r.writeDB.ExecContext(ctx, `
		INSERT INTO trained_plans (id, question, normalized_question, plan_json, sql_text, provenance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Question, entry.NormalizedQuestion, string(planJSON),
		entry.SQL, entry.Provenance, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trained plan: %w", err)
	}
	return nil
}

// LoadAll returns every entry, oldest first.
func (r *TrainedPlanRepo) LoadAll(ctx context.Context) ([]domain.TrainedPlanEntry, error) {
	rows, err := r.readDB.QueryContext(ctx, `
		SELECT id, question, normalized_question, plan_json, sql_text, provenance, created_at
		FROM trained_plans
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load trained plans: %w", err)
	}
	defer rows.Close()

	var entries []domain.TrainedPlanEntry
	for rows.Next() {
		var (
			e        domain.TrainedPlanEntry
			planJSON string
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.NormalizedQuestion, &planJSON,
			&e.SQL, &e.Provenance, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trained plan: %w", err)
		}
		var doc domain.PlanDocument
		if err := json.Unmarshal([]byte(planJSON), &doc); err != nil {
			// A corrupt row must not poison the whole cache.
			continue
		}
		e.Plan = &doc
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
