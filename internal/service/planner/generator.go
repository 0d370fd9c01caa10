// Package planner turns a user question into either a chat reply or a
// candidate plan document, consulting the trained-plan cache first and the
// reasoning service only on a miss.
package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"datachat/internal/domain"
	"datachat/internal/plancache"
	"datachat/internal/textnorm"
)

const (
	limitedModeReply = "Estou operando em modo limitado no momento: consigo responder apenas perguntas que ja conheco. Tente novamente em instantes."
	defaultChatReply = "Oi! Como posso ajudar?"

	classifySystem = `Voce decide se a mensagem precisa consultar dados (QUERY) ou se e conversa (CHAT). Responda APENAS JSON valido: {"action":"QUERY"|"CHAT","confidence":0.0}.`
	chatSystem     = "Voce e um assistente corporativo. Responda de forma curta e natural."
	planSystem     = "Voce e um planejador de consultas corporativas. Retorne APENAS um JSON valido, sem explicacoes. Nao gere SQL. Se a pergunta nao for sobre dados, retorne {\"type\": \"NONE\"}."
)

// greetings are the normalized messages that stay conversational even in
// forced-data mode.
var greetings = map[string]struct{}{
	"oi":           {},
	"ola":          {},
	"oi tudo bem":  {},
	"ola tudo bem": {},
	"tudo bem":     {},
	"bom dia":      {},
	"boa tarde":    {},
	"boa noite":    {},
	"obrigado":     {},
	"obrigada":     {},
	"valeu":        {},
	"tchau":        {},
	"ate mais":     {},
}

// Options tune the generator. Zero values fall back to production defaults.
type Options struct {
	// MinConfidence gates data intents in conversational mode: a QUERY
	// classification below it is answered as chat.
	MinConfidence float64
	// BroadenFreshBudget lets the broadened regeneration spend a fresh
	// reasoning call instead of relaxing the previous plan locally.
	BroadenFreshBudget bool
	// MaxCatalogTables bounds how many tables go into prompts.
	MaxCatalogTables int
	// ExemplarCount bounds few-shot examples per prompt.
	ExemplarCount int
}

// Result is the generator outcome: exactly one of Chat or Plan is set.
type Result struct {
	Chat *domain.ChatReply
	Plan *domain.PlanDocument
	// Table is the resolved target, when routing picked one.
	Table      *domain.TableDescriptor
	FromCache  bool
	Provenance string // "cache", "oracle", "keyword"
}

// Generator is safe for concurrent use.
type Generator struct {
	cache     *plancache.Cache
	completer domain.Completer
	exemplars domain.ExemplarStore
	opts      Options
	logger    *slog.Logger
}

// NewGenerator builds a Generator. exemplars may be nil; prompts then carry
// no few-shot examples.
func NewGenerator(cache *plancache.Cache, completer domain.Completer, exemplars domain.ExemplarStore, opts Options, logger *slog.Logger) *Generator {
	if opts.MinConfidence == 0 {
		opts.MinConfidence = 0.8
	}
	if opts.MaxCatalogTables == 0 {
		opts.MaxCatalogTables = 5
	}
	if opts.ExemplarCount == 0 {
		opts.ExemplarCount = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{cache: cache, completer: completer, exemplars: exemplars, opts: opts, logger: logger}
}

// Generate produces a chat reply or a candidate plan for the question.
// Reasoning-service failures never propagate: they degrade to cache and
// keyword routing, then to a fixed limited-mode reply.
func (g *Generator) Generate(ctx context.Context, question string, history []domain.Turn, tables []domain.TableDescriptor, mode domain.Mode) (*Result, error) {
	if g.cache != nil {
		match, err := g.cache.Lookup(ctx, question, mode)
		if err == nil && match != nil && match.Entry.Plan != nil {
			g.logger.Debug("plan cache hit", "question", question, "score", match.Score, "exact", match.Exact)
			return &Result{Plan: match.Entry.Plan, FromCache: true, Provenance: "cache"}, nil
		}
	}

	norm := textnorm.Normalize(question)
	if mode == domain.ModeForcedData && isGreeting(norm) {
		return g.chatReply(ctx, question, history), nil
	}

	action, confidence, err := g.classify(ctx, question, tables)
	if err != nil {
		g.logger.Warn("classification unavailable, degrading", "error", err)
		return g.limitedMode(norm, tables, mode), nil
	}

	wantData := action == "QUERY" || action == "DATA_ANALYSIS"
	switch mode {
	case domain.ModeConversational:
		if wantData && confidence < g.opts.MinConfidence {
			wantData = false
		}
	case domain.ModeForcedData:
		if !wantData && !isGreeting(norm) {
			wantData = true
		}
	}

	if !wantData {
		return g.chatReply(ctx, question, history), nil
	}

	target := resolveTarget(norm, tables)
	scoped := tables
	if target != nil {
		scoped = []domain.TableDescriptor{*target}
	}

	doc, raw, err := g.planFromOracle(ctx, question, history, scoped)
	if err != nil {
		g.logger.Warn("plan generation unavailable, degrading", "error", err)
		return g.limitedMode(norm, tables, mode), nil
	}
	if doc == nil {
		// Not JSON after the retry: the text itself is the answer.
		text := StripDialogueMarkers(raw)
		if text == "" {
			text = defaultChatReply
		}
		return &Result{Chat: &domain.ChatReply{Text: text}}, nil
	}
	return &Result{Plan: doc, Table: target, Provenance: "oracle"}, nil
}

// Broaden produces a wider variant of a plan that returned no rows, for
// the single retry cycle. Returns nil when there is nothing to relax.
func (g *Generator) Broaden(ctx context.Context, question string, prev *domain.SelectPlan) *domain.PlanDocument {
	if prev == nil || len(prev.Filters) == 0 {
		return nil
	}
	if g.opts.BroadenFreshBudget && g.completer != nil {
		if doc := g.broadenWithOracle(ctx, question, prev); doc != nil {
			return doc
		}
	}
	return relaxFilters(prev)
}

func (g *Generator) broadenWithOracle(ctx context.Context, question string, prev *domain.SelectPlan) *domain.PlanDocument {
	prevJSON, err := json.Marshal(prev.Document())
	if err != nil {
		return nil
	}
	prompt := "Pergunta: " + question + "\n\n" +
		"O plano abaixo nao retornou resultados:\n" + string(prevJSON) + "\n\n" +
		"Gere um plano mais amplo para a MESMA tabela, relaxando ou removendo filtros. Mantenha o formato JSON."
	text, err := g.completer.Complete(ctx, domain.CompletionRequest{
		System:    planSystem,
		Prompt:    prompt,
		MaxTokens: 256,
	})
	if err != nil {
		g.logger.Warn("broadened regeneration unavailable, relaxing locally", "error", err)
		return nil
	}
	doc, ok := ExtractDocument(text)
	if !ok || doc.IsEmpty() {
		return nil
	}
	// The broadened plan must stay on the same table; anything else is
	// discarded in favor of local relaxation.
	if doc.Table != "" && !strings.EqualFold(doc.Table, prev.Table) && !strings.EqualFold(doc.Table, prev.Schema+"."+prev.Table) {
		return nil
	}
	return doc
}

// relaxFilters widens a plan deterministically: LIKE filters keep only the
// first word of their pattern, everything else is dropped.
func relaxFilters(prev *domain.SelectPlan) *domain.PlanDocument {
	doc := prev.Document()
	var kept []domain.FilterFields
	for _, f := range doc.Filters {
		if !strings.EqualFold(f.Op, domain.OpLike) {
			continue
		}
		if s, ok := f.Value.(string); ok {
			if first := firstPatternWord(s); first != "" {
				f.Value = "%" + first + "%"
				kept = append(kept, f)
			}
		}
	}
	doc.Filters = kept
	return doc
}

func firstPatternWord(pattern string) string {
	words := strings.Fields(strings.Trim(pattern, "%"))
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

func (g *Generator) classify(ctx context.Context, question string, tables []domain.TableDescriptor) (string, float64, error) {
	var sb strings.Builder
	sb.WriteString("Mensagem: ")
	sb.WriteString(question)
	sb.WriteString("\n\nSe a mensagem pedir numeros, listas ou informacoes de registros, use QUERY. ")
	sb.WriteString("Se for cumprimento, conversa ou agradecimento, use CHAT.\n")
	if block := g.exemplarBlock(ctx, question); block != "" {
		sb.WriteString("\nExemplos:\n")
		sb.WriteString(block)
	}
	sb.WriteString("\nTabelas disponiveis: ")
	sb.WriteString(strings.Join(tableNames(tables, g.opts.MaxCatalogTables), ", "))

	text, err := g.completer.Complete(ctx, domain.CompletionRequest{
		System:    classifySystem,
		Prompt:    sb.String(),
		MaxTokens: 64,
	})
	if err != nil {
		return "", 0, err
	}

	doc, ok := ExtractDocument(text)
	if !ok {
		return "CHAT", 0, nil
	}
	action := strings.ToUpper(strings.TrimSpace(doc.Action))
	if action != "QUERY" && action != "CHAT" && action != "DATA_ANALYSIS" {
		action = "QUERY"
	}
	return action, doc.Confidence, nil
}

func (g *Generator) planFromOracle(ctx context.Context, question string, history []domain.Turn, tables []domain.TableDescriptor) (*domain.PlanDocument, string, error) {
	prompt := g.planPrompt(question, history, tables, false)
	text, err := g.completer.Complete(ctx, domain.CompletionRequest{System: planSystem, Prompt: prompt, MaxTokens: 256})
	if err != nil {
		return nil, "", err
	}
	if doc, ok := ExtractDocument(text); ok {
		return doc, text, nil
	}

	// One retry with a minimal prompt before giving up on JSON.
	minimal := g.planPrompt(question, nil, tables, true)
	retryText, err := g.completer.Complete(ctx, domain.CompletionRequest{System: planSystem, Prompt: minimal, MaxTokens: 256})
	if err != nil {
		return nil, text, nil
	}
	if doc, ok := ExtractDocument(retryText); ok {
		return doc, retryText, nil
	}
	return nil, retryText, nil
}

func (g *Generator) planPrompt(question string, history []domain.Turn, tables []domain.TableDescriptor, minimal bool) string {
	catalog, _ := json.Marshal(compactCatalog(tables, g.opts.MaxCatalogTables))

	var sb strings.Builder
	sb.WriteString("Pergunta: ")
	sb.WriteString(question)
	sb.WriteString("\n\nTabelas disponiveis (use apenas estas):\n")
	sb.Write(catalog)
	if minimal {
		sb.WriteString("\n\nResponda somente o JSON do plano.")
		return sb.String()
	}

	example := domain.PlanDocument{
		Type:   "SELECT",
		Schema: "SYSROH",
		Table:  "TB_CONTATOS",
		Fields: []string{"NOME", "EMAIL", "CELULAR"},
		Filters: []domain.FilterFields{
			{Field: "NOME", Op: "LIKE", Value: "%Rudieri%", CaseInsensitive: true},
		},
		Limit: 5,
	}
	exampleJSON, _ := json.Marshal(example)
	sb.WriteString("\n\nFormato esperado (exemplo):\n")
	sb.Write(exampleJSON)
	sb.WriteString("\n\nRegras:\n")
	sb.WriteString("- table e schema devem existir nas tabelas disponiveis\n")
	sb.WriteString("- fields/filters devem usar nomes exatos das colunas\n")
	sb.WriteString("- para busca textual use LIKE com %\n")
	sb.WriteString("- limite padrao 50 se nao souber\n")

	if lines := historyLines(history); lines != "" {
		sb.WriteString("\nConversa recente:\n")
		sb.WriteString(lines)
	}
	return sb.String()
}

func (g *Generator) chatReply(ctx context.Context, question string, history []domain.Turn) *Result {
	var sb strings.Builder
	if lines := historyLines(history); lines != "" {
		sb.WriteString(lines)
	}
	sb.WriteString("Usuario: ")
	sb.WriteString(question)
	sb.WriteString("\nAssistente:")

	text, err := g.completer.Complete(ctx, domain.CompletionRequest{
		System:      chatSystem,
		Prompt:      sb.String(),
		MaxTokens:   96,
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		return &Result{Chat: &domain.ChatReply{Text: defaultChatReply}}
	}
	return &Result{Chat: &domain.ChatReply{Text: StripDialogueMarkers(text)}}
}

// limitedMode answers without the reasoning service: keyword routing in
// forced-data mode, the fixed reply otherwise.
func (g *Generator) limitedMode(norm string, tables []domain.TableDescriptor, mode domain.Mode) *Result {
	if mode == domain.ModeForcedData {
		if target := resolveTarget(norm, tables); target != nil {
			return &Result{
				Plan:       &domain.PlanDocument{Type: "SELECT", Table: target.Name, Schema: target.Schema},
				Table:      target,
				Provenance: "keyword",
			}
		}
	}
	return &Result{Chat: &domain.ChatReply{Text: limitedModeReply}}
}

func (g *Generator) exemplarBlock(ctx context.Context, question string) string {
	if g.exemplars == nil {
		return ""
	}
	examples, err := g.exemplars.NearestExamples(ctx, question, g.opts.ExemplarCount)
	if err != nil {
		// Enrichment only; proceed without examples.
		g.logger.Debug("exemplar lookup failed", "error", err)
		return ""
	}
	var sb strings.Builder
	for _, ex := range examples {
		sb.WriteString("- ")
		sb.WriteString(ex.Question)
		sb.WriteString(" -> ")
		sb.WriteString(ex.Kind)
		sb.WriteString("\n")
	}
	return sb.String()
}

// resolveTarget routes a question to a table: a table-name word present in
// the question wins, then routing keywords.
func resolveTarget(norm string, tables []domain.TableDescriptor) *domain.TableDescriptor {
	words := textnorm.Words(norm)
	for i := range tables {
		for _, part := range strings.Fields(textnorm.Normalize(tables[i].Name)) {
			if len(part) < 3 {
				continue
			}
			if _, ok := words[part]; ok {
				return &tables[i]
			}
		}
	}
	for i := range tables {
		if tables[i].HasKeyword(norm) {
			return &tables[i]
		}
	}
	return nil
}

func isGreeting(norm string) bool {
	_, ok := greetings[norm]
	return ok
}

func tableNames(tables []domain.TableDescriptor, max int) []string {
	names := make([]string, 0, len(tables))
	for i := range tables {
		if i >= max {
			break
		}
		names = append(names, tables[i].QualifiedName())
	}
	return names
}

type catalogEntry struct {
	Table   string   `json:"table"`
	Schema  string   `json:"schema,omitempty"`
	Columns []string `json:"columns"`
}

func compactCatalog(tables []domain.TableDescriptor, max int) []catalogEntry {
	out := make([]catalogEntry, 0, len(tables))
	for i := range tables {
		if i >= max {
			break
		}
		out = append(out, catalogEntry{
			Table:   tables[i].Name,
			Schema:  tables[i].Schema,
			Columns: tables[i].ColumnNames(),
		})
	}
	return out
}

func historyLines(history []domain.Turn) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, turn := range history {
		role := "Usuario"
		if turn.Role == "assistant" {
			role = "Assistente"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(turn.TruncatedContent())
		sb.WriteString("\n")
	}
	return sb.String()
}
