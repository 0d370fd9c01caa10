package answer

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datachat/internal/domain"
	"datachat/internal/plancache"
	"datachat/internal/service/plan"
	"datachat/internal/service/planner"
)

type fakeCompleter struct {
	responses []string
	calls     int
}

func (f *fakeCompleter) Complete(_ context.Context, _ domain.CompletionRequest) (string, error) {
	f.calls++
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

type fakeCatalog struct{ tables []domain.TableDescriptor }

func (f *fakeCatalog) ListTables(_ context.Context) ([]domain.TableDescriptor, error) {
	return f.tables, nil
}

type fakeBackend struct {
	sqls    []string
	results [][]domain.Row
	err     error
}

func (f *fakeBackend) Execute(_ context.Context, q *domain.CompiledQuery) ([]string, []domain.Row, error) {
	f.sqls = append(f.sqls, q.SQL)
	if f.err != nil {
		return nil, nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil, nil
	}
	rows := f.results[0]
	f.results = f.results[1:]
	var cols []string
	if len(rows) > 0 {
		for k := range rows[0] {
			cols = append(cols, k)
		}
	}
	return cols, rows, nil
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

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(discard{}, nil)) }

func catalogFixture() []domain.TableDescriptor {
	return []domain.TableDescriptor{{
		Name:     "TB_CONTATOS",
		Schema:   "SYSROH",
		Keywords: []string{"contato", "cliente"},
		Columns:  []domain.Column{{Name: "NOME"}, {Name: "EMAIL"}, {Name: "CIDADE"}},
	}}
}

type fixture struct {
	controller *Controller
	oracle     *fakeCompleter
	backend    *fakeBackend
	store      *memPlanStore
}

func newFixture(t *testing.T, oracle *fakeCompleter, backend *fakeBackend) *fixture {
	t.Helper()
	store := &memPlanStore{}
	cache := plancache.New(store, plancache.Options{}, quiet())
	gen := planner.NewGenerator(cache, oracle, nil, planner.Options{}, quiet())
	ctl := NewController(gen, plan.NewValidator(50, 200), &fakeCatalog{tables: catalogFixture()}, backend, cache, quiet())
	return &fixture{controller: ctl, oracle: oracle, backend: backend, store: store}
}

func TestAnswer_ChatPassThrough(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"CHAT","confidence":0.99}`,
		"Oi! Tudo bem por aqui.",
	}}
	f := newFixture(t, oracle, &fakeBackend{})

	reply, err := f.controller.Answer(context.Background(), "bom dia, tudo certo?", nil, domain.ModeConversational)
	require.NoError(t, err)
	chat, ok := reply.(*domain.ChatReply)
	require.True(t, ok)
	assert.Equal(t, "Oi! Tudo bem por aqui.", chat.Text)
	assert.Empty(t, f.backend.sqls, "chat replies never touch the warehouse")
}

func TestAnswer_DataHappyPathPersistsPlan(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"QUERY","confidence":0.95}`,
		`{"type":"SELECT","table":"TB_CONTATOS","fields":["NOME","EMAIL"],"filters":[{"field":"NOME","op":"LIKE","value":"%joão silva%"}],"limit":5}`,
	}}
	backend := &fakeBackend{results: [][]domain.Row{{
		{"NOME": "JOÃO SILVA", "EMAIL": "joao@empresa.com"},
	}}}
	f := newFixture(t, oracle, backend)

	reply, err := f.controller.Answer(context.Background(), "contato de joão silva", nil, domain.ModeConversational)
	require.NoError(t, err)
	data, ok := reply.(*domain.DataReply)
	require.True(t, ok)

	require.Len(t, backend.sqls, 1)
	assert.Equal(t,
		"SELECT NOME, EMAIL FROM SYSROH.TB_CONTATOS WHERE UPPER(NOME) LIKE :1 FETCH FIRST 5 ROWS ONLY",
		backend.sqls[0])
	assert.Equal(t, []string{"TB_CONTATOS"}, data.TablesUsed)
	assert.False(t, data.NoData)
	assert.Contains(t, data.Summary, "Registro encontrado")
	assert.Contains(t, data.Summary, "Nome: JOÃO SILVA")

	require.Len(t, f.store.entries, 1, "non-empty results are written through")
	assert.Equal(t, "oracle", f.store.entries[0].Provenance)
	assert.Equal(t, "contato de joao silva", f.store.entries[0].NormalizedQuestion)
}

func TestAnswer_UnauthorizedTableBecomesApology(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"QUERY","confidence":0.95}`,
		`{"type":"SELECT","table":"TB_SALARIOS"}`,
	}}
	f := newFixture(t, oracle, &fakeBackend{})

	reply, err := f.controller.Answer(context.Background(), "salario dos diretores", nil, domain.ModeConversational)
	require.NoError(t, err)
	chat, ok := reply.(*domain.ChatReply)
	require.True(t, ok, "validation failure degrades to chat")
	assert.Contains(t, chat.Text, "tabelas autorizadas")
	assert.NotContains(t, chat.Text, "ERR_", "taxonomy codes never reach the user")
	assert.Empty(t, f.backend.sqls, "nothing compiles or executes for unauthorized tables")
	assert.Empty(t, f.store.entries)
}

func TestAnswer_ExecutionFailureIsTerminalWithSQL(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"QUERY","confidence":0.95}`,
		`{"type":"SELECT","table":"TB_CONTATOS","limit":10}`,
	}}
	backend := &fakeBackend{err: errors.New("ORA-12170: connect timeout")}
	f := newFixture(t, oracle, backend)

	reply, err := f.controller.Answer(context.Background(), "listar contatos", nil, domain.ModeConversational)
	require.NoError(t, err)
	data, ok := reply.(*domain.DataReply)
	require.True(t, ok)
	assert.NotEmpty(t, data.Err)
	assert.NotContains(t, data.Err, "ORA-12170", "backend detail stays out of the user message")
	assert.NotEmpty(t, data.SQL, "the offending statement is kept for diagnostics")
	assert.Len(t, backend.sqls, 1, "execution failures are not retried here")
}

func TestAnswer_EmptyResultBroadensOnce(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"QUERY","confidence":0.95}`,
		`{"type":"SELECT","table":"TB_CONTATOS","fields":["NOME","EMAIL"],"filters":[{"field":"NOME","op":"LIKE","value":"%joão silva sauro%"}],"limit":5}`,
	}}
	backend := &fakeBackend{results: [][]domain.Row{
		{}, // original plan: no rows
		{{"NOME": "JOÃO PEREIRA", "EMAIL": "jp@empresa.com"}}, // broadened
	}}
	f := newFixture(t, oracle, backend)

	reply, err := f.controller.Answer(context.Background(), "contato de joão silva sauro", nil, domain.ModeConversational)
	require.NoError(t, err)
	data, ok := reply.(*domain.DataReply)
	require.True(t, ok)

	require.Len(t, backend.sqls, 2, "exactly one broadening cycle")
	assert.Contains(t, backend.sqls[1], "UPPER(NOME) LIKE :1")
	assert.False(t, data.NoData)
	require.Len(t, data.Rows, 1)

	require.Len(t, f.store.entries, 1)
	assert.Equal(t, "broadened", f.store.entries[0].Provenance)
}

func TestAnswer_NoDataAfterBroadenIsNotAnError(t *testing.T) {
	oracle := &fakeCompleter{responses: []string{
		`{"action":"QUERY","confidence":0.95}`,
		`{"type":"SELECT","table":"TB_CONTATOS","filters":[{"field":"NOME","op":"LIKE","value":"%pessoa inexistente%"}],"limit":5}`,
	}}
	backend := &fakeBackend{results: [][]domain.Row{{}, {}}}
	f := newFixture(t, oracle, backend)

	reply, err := f.controller.Answer(context.Background(), "contato de pessoa inexistente", nil, domain.ModeConversational)
	require.NoError(t, err)
	data, ok := reply.(*domain.DataReply)
	require.True(t, ok)

	assert.Len(t, backend.sqls, 2, "one broadening cycle, then stop")
	assert.True(t, data.NoData)
	assert.Empty(t, data.Err, "no data is a classification, not an error")
	assert.Contains(t, data.Summary, "Nao encontrei nenhum contato")
	assert.Empty(t, f.store.entries, "empty results are never persisted")
}

func TestAnswer_CachedPlanSkipsOracleAndRePersistence(t *testing.T) {
	oracle := &fakeCompleter{}
	backend := &fakeBackend{results: [][]domain.Row{{{"TOTAL": int64(42)}}}}

	store := &memPlanStore{entries: []domain.TrainedPlanEntry{{
		ID:       "seed",
		Question: "quantos contatos temos",
		Plan: &domain.PlanDocument{
			Type:         "SELECT",
			Table:        "TB_CONTATOS",
			Aggregations: []domain.AggregationFields{{Func: "COUNT", Field: "*", Alias: "TOTAL"}},
			Limit:        1,
		},
		Provenance: "oracle",
	}}}
	cache := plancache.New(store, plancache.Options{}, quiet())
	gen := planner.NewGenerator(cache, oracle, nil, planner.Options{}, quiet())
	ctl := NewController(gen, plan.NewValidator(50, 200), &fakeCatalog{tables: catalogFixture()}, backend, cache, quiet())

	reply, err := ctl.Answer(context.Background(), "Quantos contatos temos?", nil, domain.ModeConversational)
	require.NoError(t, err)
	data, ok := reply.(*domain.DataReply)
	require.True(t, ok)

	assert.Zero(t, oracle.calls, "cached questions perform zero reasoning calls")
	require.Len(t, backend.sqls, 1)
	assert.Equal(t, "SELECT COUNT(*) AS TOTAL FROM SYSROH.TB_CONTATOS FETCH FIRST 1 ROWS ONLY", backend.sqls[0])
	assert.Equal(t, "Total de contatos: 42.", data.Summary)
	assert.Len(t, store.entries, 1, "cache hits are not re-persisted")
}
