package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"datachat/internal/domain"
)

func TestFormatResults_AggregateTotal(t *testing.T) {
	plan := &domain.SelectPlan{
		Table:        "TB_CONTATOS",
		Aggregations: []domain.Aggregation{{Func: "COUNT", Field: "*", Alias: "TOTAL"}},
	}
	got := FormatResults(plan, []domain.Row{{"TOTAL": int64(157)}})
	assert.Equal(t, "Total de contatos: 157.", got)
}

func TestFormatResults_AggregateUnknownTable(t *testing.T) {
	plan := &domain.SelectPlan{
		Table:        "TB_PEDIDOS",
		Aggregations: []domain.Aggregation{{Func: "SUM", Field: "VALOR", Alias: "TOTAL"}},
	}
	got := FormatResults(plan, []domain.Row{{"TOTAL": 99.5}})
	assert.Equal(t, "Total de registros: 99.5.", got)
}

func TestFormatResults_SingleRow(t *testing.T) {
	plan := &domain.SelectPlan{Table: "TB_CONTATOS", Fields: []string{"NOME", "EMAIL", "CELULAR"}}
	row := domain.Row{"NOME": "JOÃO SILVA", "EMAIL": "joao@empresa.com", "CELULAR": nil}
	got := FormatResults(plan, []domain.Row{row})
	assert.Equal(t, "Registro encontrado: Nome: JOÃO SILVA, Email: joao@empresa.com", got)
}

func TestFormatResults_MultipleRowsPreviewCapped(t *testing.T) {
	plan := &domain.SelectPlan{Table: "TB_CONTATOS", Fields: []string{"NOME"}}
	rows := make([]domain.Row, 8)
	for i := range rows {
		rows[i] = domain.Row{"NOME": "CONTATO"}
	}
	got := FormatResults(plan, rows)
	assert.Contains(t, got, "Encontrei 8 registros.")
	assert.Equal(t, 5, countLines(got)-1, "preview lists at most five rows")
}

func TestFormatResults_EmptyRows(t *testing.T) {
	assert.Equal(t,
		"Nao encontrei nenhum contato com esse criterio.",
		FormatResults(&domain.SelectPlan{Table: "TB_CONTATOS"}, nil))
	assert.Equal(t,
		"Nao encontrei nenhum registro com esse criterio.",
		FormatResults(nil, nil))
}

func TestFormatResults_FallsBackToRowKeysSorted(t *testing.T) {
	row := domain.Row{"NOME": "ANA", "CIDADE": "CAMPINAS"}
	got := FormatResults(&domain.SelectPlan{Table: "TB_CONTATOS"}, []domain.Row{row})
	// Keys sorted: CIDADE before NOME.
	assert.Equal(t, "Registro encontrado: Cidade: CAMPINAS, Nome: ANA", got)
}

func TestSummarizePlan(t *testing.T) {
	sel := &domain.SelectPlan{
		Table:        "TB_CONTATOS",
		Schema:       "SYSROH",
		Aggregations: []domain.Aggregation{{Func: "COUNT", Field: "*"}},
		Filters:      []domain.Filter{{Field: "NOME", Op: "LIKE", Value: "%A%"}},
	}
	assert.Equal(t, "SYSROH.TB_CONTATOS (COUNT), 1 filtro", SummarizePlan(sel))

	sel.Filters = append(sel.Filters, domain.Filter{Field: "CIDADE", Op: "=", Value: "X"})
	sel.Aggregations = nil
	assert.Equal(t, "SYSROH.TB_CONTATOS, 2 filtros", SummarizePlan(sel))

	assert.Equal(t, "consulta direta", SummarizePlan(&domain.RawPlan{SQL: "SELECT 1"}))
}

func countLines(s string) int {
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
