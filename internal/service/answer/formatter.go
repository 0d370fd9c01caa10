package answer

import (
	"fmt"
	"sort"
	"strings"

	"datachat/internal/domain"
)

// previewRows bounds how many rows the prose summary lists.
const previewRows = 5

// tableLabels maps well-known tables to the noun used in summaries.
var tableLabels = map[string]string{
	"TB_CONTATOS": "contato",
	"TB_PRODUTOS": "produto",
	"TB_VENDAS":   "venda",
}

// FormatResults renders rows as deterministic Portuguese prose: an
// aggregate total, a single-record line, or a capped listing.
func FormatResults(plan *domain.SelectPlan, rows []domain.Row) string {
	if len(rows) == 0 {
		if label := tableLabel(planTable(plan)); label != "" {
			return fmt.Sprintf("Nao encontrei nenhum %s com esse criterio.", label)
		}
		return "Nao encontrei nenhum registro com esse criterio."
	}

	if plan != nil && len(plan.Aggregations) > 0 {
		if total, ok := aggregateTotal(rows[0]); ok {
			if label := tableLabel(plan.Table); label != "" {
				return fmt.Sprintf("Total de %ss: %v.", label, total)
			}
			return fmt.Sprintf("Total: %v.", total)
		}
	}

	fields := presentFields(plan, rows[0])

	if len(rows) == 1 {
		if line := rowParts(rows[0], fields); line != "" {
			return "Registro encontrado: " + line
		}
		return "Registro encontrado."
	}

	header := fmt.Sprintf("Encontrei %d registros.", len(rows))
	var lines []string
	for _, row := range rows[:min(previewRows, len(rows))] {
		if line := rowParts(row, fields); line != "" {
			lines = append(lines, "- "+line)
		}
	}
	if len(lines) == 0 {
		return header
	}
	return header + "\n" + strings.Join(lines, "\n")
}

// SummarizePlan renders a one-line description of what was queried, for
// the reply metadata.
func SummarizePlan(plan domain.SemanticPlan) string {
	switch p := plan.(type) {
	case *domain.SelectPlan:
		var sb strings.Builder
		if p.Schema != "" {
			sb.WriteString(p.Schema)
			sb.WriteString(".")
		}
		sb.WriteString(p.Table)
		if len(p.Aggregations) > 0 {
			funcs := make([]string, len(p.Aggregations))
			for i, a := range p.Aggregations {
				funcs[i] = a.Func
			}
			sb.WriteString(" (")
			sb.WriteString(strings.Join(funcs, ", "))
			sb.WriteString(")")
		}
		if n := len(p.Filters); n == 1 {
			sb.WriteString(", 1 filtro")
		} else if n > 1 {
			fmt.Fprintf(&sb, ", %d filtros", n)
		}
		return sb.String()
	case *domain.RawPlan:
		return "consulta direta"
	default:
		return ""
	}
}

func aggregateTotal(row domain.Row) (interface{}, bool) {
	for _, key := range []string{"TOTAL", "total", "Total"} {
		if v, ok := row[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// presentFields keeps the plan's field order where the row actually has
// values, falling back to every row key.
func presentFields(plan *domain.SelectPlan, first domain.Row) []string {
	var fields []string
	if plan != nil {
		for _, f := range plan.Fields {
			if _, ok := first[f]; ok {
				fields = append(fields, f)
			}
		}
	}
	if len(fields) == 0 {
		for k := range first {
			fields = append(fields, k)
		}
		// Map iteration is random; keep the summary deterministic.
		sort.Strings(fields)
	}
	return fields
}

func rowParts(row domain.Row, fields []string) string {
	var parts []string
	for _, f := range fields {
		v, ok := row[f]
		if !ok || v == nil {
			continue
		}
		parts = append(parts, humanizeField(f)+": "+fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, ", ")
}

func humanizeField(name string) string {
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(name), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func tableLabel(table string) string {
	if table == "" {
		return ""
	}
	if label, ok := tableLabels[strings.ToUpper(table)]; ok {
		return label
	}
	return "registro"
}

func planTable(plan *domain.SelectPlan) string {
	if plan == nil {
		return ""
	}
	return plan.Table
}

