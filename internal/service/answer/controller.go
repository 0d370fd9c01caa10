// Package answer orchestrates the full pipeline for one question:
// generate → validate → compile → execute, with a single broadening retry
// when the result is empty, and write-through persistence of plans that
// produced data.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"datachat/internal/domain"
	"datachat/internal/plancache"
	"datachat/internal/service/plan"
	"datachat/internal/service/planner"
)

// Controller is the top of the pipeline. Safe for concurrent use.
type Controller struct {
	generator *planner.Generator
	validator *plan.Validator
	catalog   domain.TableCatalog
	backend   domain.ExecutionBackend
	cache     *plancache.Cache
	logger    *slog.Logger
}

func NewController(generator *planner.Generator, validator *plan.Validator, catalog domain.TableCatalog, backend domain.ExecutionBackend, cache *plancache.Cache, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		generator: generator,
		validator: validator,
		catalog:   catalog,
		backend:   backend,
		cache:     cache,
		logger:    logger,
	}
}

// Answer runs one question through the pipeline and returns either a
// *domain.ChatReply or a *domain.DataReply. Validation failures degrade to
// chat apologies; only infrastructure faults (catalog unreachable) surface
// as errors.
func (c *Controller) Answer(ctx context.Context, question string, history []domain.Turn, mode domain.Mode) (domain.Reply, error) {
	tables, err := c.catalog.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	res, err := c.generator.Generate(ctx, question, history, tables, mode)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	if res.Chat != nil {
		return res.Chat, nil
	}

	validated, err := c.validator.Validate(res.Plan, tables)
	if err != nil {
		c.logger.Info("plan rejected", "question", question, "error", err, "from_cache", res.FromCache)
		return c.apology(err, mode), nil
	}

	query, err := plan.Compile(validated)
	if err != nil {
		c.logger.Warn("plan failed to compile", "question", question, "error", err)
		return c.apology(err, mode), nil
	}

	cols, rows, err := c.backend.Execute(ctx, query)
	if err != nil {
		c.logger.Error("query execution failed", "sql", query.SQL, "error", err)
		return &domain.DataReply{
			SQL: query.SQL,
			Err: "Nao consegui executar a consulta agora. Tente novamente em instantes.",
		}, nil
	}

	provenance := res.Provenance
	sel, _ := validated.(*domain.SelectPlan)

	// Exactly one broadening cycle on an empty result.
	if len(rows) == 0 && sel != nil {
		if bcols, brows, bsel, bquery, ok := c.broaden(ctx, question, sel, tables); ok {
			cols, rows, sel, query = bcols, brows, bsel, bquery
			provenance = "broadened"
		}
	}

	summary := SummarizePlan(validated)
	if sel != nil {
		summary = SummarizePlan(sel)
	}
	reply := &domain.DataReply{
		Columns:     cols,
		Rows:        rows,
		PlanSummary: summary,
		SQL:         query.SQL,
		Summary:     FormatResults(sel, rows),
		NoData:      len(rows) == 0,
	}
	if sel != nil {
		reply.TablesUsed = []string{sel.Table}
	}

	if len(rows) > 0 && !res.FromCache {
		c.persist(ctx, question, validated, sel, query.SQL, provenance)
	}
	return reply, nil
}

// broaden regenerates a wider plan for the same table and adopts it only
// when it returns rows.
func (c *Controller) broaden(ctx context.Context, question string, prev *domain.SelectPlan, tables []domain.TableDescriptor) ([]string, []domain.Row, *domain.SelectPlan, *domain.CompiledQuery, bool) {
	doc := c.generator.Broaden(ctx, question, prev)
	if doc == nil {
		return nil, nil, nil, nil, false
	}
	validated, err := c.validator.Validate(doc, tables)
	if err != nil {
		c.logger.Debug("broadened plan rejected", "error", err)
		return nil, nil, nil, nil, false
	}
	sel, ok := validated.(*domain.SelectPlan)
	if !ok {
		return nil, nil, nil, nil, false
	}
	query, err := plan.Compile(sel)
	if err != nil {
		return nil, nil, nil, nil, false
	}
	cols, rows, err := c.backend.Execute(ctx, query)
	if err != nil || len(rows) == 0 {
		return nil, nil, nil, nil, false
	}
	c.logger.Info("broadened retry produced rows", "table", sel.Table, "rows", len(rows))
	return cols, rows, sel, query, true
}

func (c *Controller) persist(ctx context.Context, question string, validated domain.SemanticPlan, sel *domain.SelectPlan, sqlText, provenance string) {
	if c.cache == nil {
		return
	}
	var doc *domain.PlanDocument
	if sel != nil {
		doc = sel.Document()
	} else if raw, ok := validated.(*domain.RawPlan); ok {
		doc = &domain.PlanDocument{Type: "RAW_SQL", SQL: raw.SQL, Dialect: string(raw.Dialect)}
	} else {
		return
	}
	entry := &domain.TrainedPlanEntry{
		Question:   question,
		Plan:       doc,
		SQL:        sqlText,
		Provenance: provenance,
	}
	if err := c.cache.Put(ctx, entry); err != nil {
		// Persistence is best-effort; the answer already exists.
		c.logger.Warn("trained plan persistence failed", "error", err)
	}
}

// apology maps a validation failure to a mode-appropriate chat reply. The
// raw taxonomy never reaches the user.
func (c *Controller) apology(err error, mode domain.Mode) *domain.ChatReply {
	var pe *domain.PlanError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case domain.KindTableNotAuthorized:
			return &domain.ChatReply{Text: "Nao tenho acesso a essa tabela. Posso consultar apenas as tabelas autorizadas do catalogo."}
		case domain.KindRawSQLNotSelect, domain.KindRawSQLForbiddenCmd:
			return &domain.ChatReply{Text: "Por seguranca, so consigo executar consultas de leitura."}
		}
	}
	if mode == domain.ModeForcedData {
		return &domain.ChatReply{Text: "Nao consegui montar uma consulta segura para essa pergunta. Pode reformular indicando a tabela ou o dado desejado?"}
	}
	return &domain.ChatReply{Text: "Posso ajudar com consultas a dados. O que voce precisa?"}
}
