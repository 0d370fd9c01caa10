package planner

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datachat/internal/domain"
	"datachat/internal/plancache"
)

type fakeCompleter struct {
	responses []string
	err       error
	calls     int
	prompts   []domain.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

type memPlanStore struct {
	entries []domain.TrainedPlanEntry
}

func (s *memPlanStore) Append(_ context.Context, e *domain.TrainedPlanEntry) error {
	s.entries = append(s.entries, *e)
	return nil
}

func (s *memPlanStore) LoadAll(_ context.Context) ([]domain.TrainedPlanEntry, error) {
	out := make([]domain.TrainedPlanEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func catalogFixture() []domain.TableDescriptor {
	return []domain.TableDescriptor{
		{
			Name:     "TB_CONTATOS",
			Schema:   "SYSROH",
			Keywords: []string{"contato", "cliente", "telefone"},
			Columns:  []domain.Column{{Name: "NOME"}, {Name: "EMAIL"}, {Name: "CELULAR"}},
		},
		{
			Name:     "TB_VENDAS",
			Schema:   "SYSROH",
			Keywords: []string{"venda", "faturamento"},
			Columns:  []domain.Column{{Name: "VALOR"}, {Name: "VENDEDOR"}},
		},
	}
}

func TestGenerate_CacheHitSkipsReasoningEntirely(t *testing.T) {
	store := &memPlanStore{entries: []domain.TrainedPlanEntry{{
		Question: "quantos contatos temos",
		Plan:     &domain.PlanDocument{Type: "SELECT", Table: "TB_CONTATOS"},
	}}}
	cache := plancache.New(store, plancache.Options{}, quietLogger())
	oracle := &fakeCompleter{}
	g := NewGenerator(cache, oracle, nil, Options{}, quietLogger())

	res, err := g.Generate(context.Background(), "Quantos contatos temos?", nil, catalogFixture(), domain.ModeConversational)
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.True(t, res.FromCache)
	assert.Equal(t, "cache", res.Provenance)
	assert.Zero(t, oracle.calls, "cached questions must not touch the reasoning service")
}

func TestGenerate_ChatClassification(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"CHAT","confidence":0.95}`,
		"Tudo otimo por aqui! Como posso ajudar?",
	}}
	g := NewGenerator(nil, oracle, nil, Options{}, quietLogger())

	res, err := g.Generate(context.Background(), "oi, tudo bem com voce?", nil, catalogFixture(), domain.ModeConversational)
	require.NoError(t, err)
	require.NotNil(t, res.Chat)
	assert.Equal(t, "Tudo otimo por aqui! Como posso ajudar?", res.Chat.Text)
	assert.Equal(t, 2, oracle.calls)
}

func TestGenerate_ConversationalLowConfidenceDowngrades(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"QUERY","confidence":0.4}`,
		"Posso verificar isso para voce, pode detalhar?",
	}}
	g := NewGenerator(nil, oracle, nil, Options{}, quietLogger())

	res, err := g.Generate(context.Background(), "talvez os numeros de ontem?", nil, catalogFixture(), domain.ModeConversational)
	require.NoError(t, err)
	require.NotNil(t, res.Chat, "low-confidence data intent answers as chat")
	assert.Nil(t, res.Plan)
}

func TestGenerate_ForcedDataUpgradesChat(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"CHAT","confidence":0.9}`,
		`{"type":"SELECT","table":"TB_CONTATOS","fields":["NOME","EMAIL"],"limit":10}`,
	}}
	g := NewGenerator(nil, oracle, nil, Options{}, quietLogger())

	res, err := g.Generate(context.Background(), "me mostre os contatos de campinas", nil, catalogFixture(), domain.ModeForcedData)
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.Equal(t, "TB_CONTATOS", res.Plan.Table)
	assert.Equal(t, "oracle", res.Provenance)
	require.NotNil(t, res.Table, "question names the table, routing should resolve it")
	assert.Equal(t, "TB_CONTATOS", res.Table.Name)
}

func TestGenerate_ForcedDataGreetingStaysChat(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{"Bom dia! Como posso ajudar?"}}
	g := NewGenerator(nil, oracle, nil, Options{}, quietLogger())

	res, err := g.Generate(context.Background(), "Bom dia!", nil, catalogFixture(), domain.ModeForcedData)
	require.NoError(t, err)
	require.NotNil(t, res.Chat)
	assert.Equal(t, 1, oracle.calls, "greetings skip classification")
}

func TestGenerate_LimitedModeWhenReasoningDown(t *testing.T) {
	oracle := &fakeCompleter{err: errors.New("all endpoints down")}

	// Conversational: fixed limited-mode reply.
	g := NewGenerator(nil, oracle, nil, Options{}, quietLogger())
	res, err := g.Generate(context.Background(), "qual o faturamento de agosto?", nil, catalogFixture(), domain.ModeConversational)
	require.NoError(t, err)
	require.NotNil(t, res.Chat)
	assert.Equal(t, limitedModeReply, res.Chat.Text)

	// Forced-data: keyword routing still produces a plan.
	res, err = g.Generate(context.Background(), "qual o faturamento de agosto?", nil, catalogFixture(), domain.ModeForcedData)
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.Equal(t, "TB_VENDAS", res.Plan.Table)
	assert.Equal(t, "keyword", res.Provenance)
}

func TestGenerate_NonJSONPlanFallsBackToChatAfterRetry(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"QUERY","confidence":0.95}`,
		"nao consegui montar o plano",
		"Assistente: Nao encontrei uma consulta adequada para isso.",
	}}
	g := NewGenerator(nil, oracle, nil, Options{}, quietLogger())

	res, err := g.Generate(context.Background(), "relatorio completo de tudo", nil, catalogFixture(), domain.ModeConversational)
	require.NoError(t, err)
	require.NotNil(t, res.Chat)
	assert.Equal(t, "Nao encontrei uma consulta adequada para isso.", res.Chat.Text)
	assert.Equal(t, 3, oracle.calls, "one minimal-prompt retry before the chat fallback")
}

func TestBroaden_RelaxesLikeFiltersLocally(t *testing.T) {
	g := NewGenerator(nil, &fakeCompleter{}, nil, Options{}, quietLogger())

	prev := &domain.SelectPlan{
		Table:  "TB_CONTATOS",
		Schema: "SYSROH",
		Fields: []string{"NOME", "EMAIL"},
		Filters: []domain.Filter{
			{Field: "NOME", Op: domain.OpLike, Value: "%JOÃO SILVA%", CaseInsensitive: true},
			{Field: "CIDADE", Op: domain.OpEq, Value: "CAMPINAS"},
		},
		Limit:   50,
		Dialect: domain.DialectOracle,
	}

	doc := g.Broaden(context.Background(), "contato de joão silva em campinas", prev)
	require.NotNil(t, doc)
	require.Len(t, doc.Filters, 1, "equality filters are dropped, LIKE is relaxed")
	assert.Equal(t, "NOME", doc.Filters[0].Field)
	assert.Equal(t, "%JOÃO%", doc.Filters[0].Value)
}

func TestBroaden_NothingToRelax(t *testing.T) {
	g := NewGenerator(nil, &fakeCompleter{}, nil, Options{}, quietLogger())
	assert.Nil(t, g.Broaden(context.Background(), "quantos contatos temos", &domain.SelectPlan{Table: "TB_CONTATOS"}))
	assert.Nil(t, g.Broaden(context.Background(), "quantos contatos temos", nil))
}

func TestBroaden_FreshBudgetAsksOracleSameTableOnly(t *testing.T) {
	prev := &domain.SelectPlan{
		Table:   "TB_CONTATOS",
		Schema:  "SYSROH",
		Filters: []domain.Filter{{Field: "NOME", Op: domain.OpLike, Value: "%JOÃO SILVA%"}},
	}

	oracle := &fakeCompleter{responses: []string{
		`{"type":"SELECT","table":"TB_CONTATOS","filters":[{"field":"NOME","op":"LIKE","value":"%JOAO%"}]}`,
	}}
	g := NewGenerator(nil, oracle, nil, Options{BroadenFreshBudget: true}, quietLogger())
	doc := g.Broaden(context.Background(), "contato de joão silva", prev)
	require.NotNil(t, doc)
	assert.Equal(t, "%JOAO%", doc.Filters[0].Value)
	assert.Equal(t, 1, oracle.calls)

	// A broadened plan that wanders to another table is discarded in favor
	// of local relaxation.
	oracle = &fakeCompleter{responses: []string{`{"type":"SELECT","table":"TB_VENDAS"}`}}
	g = NewGenerator(nil, oracle, nil, Options{BroadenFreshBudget: true}, quietLogger())
	doc = g.Broaden(context.Background(), "contato de joão silva", prev)
	require.NotNil(t, doc)
	assert.Equal(t, "TB_CONTATOS", doc.Table)
	assert.Equal(t, "%JOÃO%", doc.Filters[0].Value)
}
