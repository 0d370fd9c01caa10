// Package plan sanitizes untrusted plan documents against the table catalog
// and compiles validated plans into dialect-specific SQL.
package plan

import (
	"fmt"
	"regexp"
	"strings"

	"datachat/internal/domain"
)

// identifierRE is the defense-in-depth allow-list for anything interpolated
// into query text. Identifiers cannot be parameterized, only values can.
var identifierRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func isIdentifier(s string) bool {
	return identifierRE.MatchString(strings.TrimSpace(s))
}

// Compile deterministically turns a validated plan into SQL text plus an
// ordered parameter list. Compiling the same plan twice yields byte-identical
// output.
func Compile(p domain.SemanticPlan) (*domain.CompiledQuery, error) {
	switch sp := p.(type) {
	case *domain.RawPlan:
		return &domain.CompiledQuery{SQL: sp.SQL, Dialect: sp.Dialect}, nil
	case *domain.SelectPlan:
		return compileSelect(sp)
	default:
		return nil, domain.ErrValidation("unsupported plan type %T", p)
	}
}

func compileSelect(p *domain.SelectPlan) (*domain.CompiledQuery, error) {
	dialect := p.Dialect
	if dialect == "" {
		dialect = domain.DialectOracle
	}

	if !isIdentifier(p.Table) {
		return nil, domain.ErrValidation("invalid table identifier %q", p.Table)
	}
	tableRef := p.Table
	if p.Schema != "" {
		if !isIdentifier(p.Schema) {
			return nil, domain.ErrValidation("invalid schema identifier %q", p.Schema)
		}
		tableRef = p.Schema + "." + p.Table
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(buildProjection(p))
	sb.WriteString(" FROM ")
	sb.WriteString(tableRef)

	where, params := buildWhere(p.Filters, dialect)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	if p.GroupBy != "" && isIdentifier(p.GroupBy) {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(p.GroupBy)
	}

	if order := buildOrderBy(p.OrderBy); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}

	if p.Limit > 0 {
		if dialect == domain.DialectOracle {
			fmt.Fprintf(&sb, " FETCH FIRST %d ROWS ONLY", p.Limit)
		} else {
			fmt.Fprintf(&sb, " LIMIT %d", p.Limit)
		}
	}

	return &domain.CompiledQuery{SQL: sb.String(), Params: params, Dialect: dialect}, nil
}

func buildProjection(p *domain.SelectPlan) string {
	parts := make([]string, 0, len(p.Fields)+len(p.Aggregations))
	for _, f := range p.Fields {
		if f == "*" || isIdentifier(f) {
			parts = append(parts, f)
		}
	}
	for _, agg := range p.Aggregations {
		fn := strings.ToUpper(agg.Func)
		switch fn {
		case domain.AggCount, domain.AggSum, domain.AggAvg, domain.AggMin, domain.AggMax:
		default:
			continue
		}
		field := agg.Field
		if field == "*" {
			// A bare star only makes sense for COUNT.
			if fn != domain.AggCount {
				continue
			}
		} else if !isIdentifier(field) {
			continue
		}
		expr := fn + "(" + field + ")"
		if agg.Alias != "" && isIdentifier(agg.Alias) {
			expr += " AS " + agg.Alias
		}
		parts = append(parts, expr)
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ", ")
}

func buildWhere(filters []domain.Filter, dialect domain.Dialect) (string, []interface{}) {
	var clauses []string
	var params []interface{}

	for _, flt := range filters {
		if !isIdentifier(flt.Field) {
			continue
		}
		op := strings.ToUpper(flt.Op)
		switch op {
		case domain.OpEq, domain.OpLike, domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		default:
			op = domain.OpEq
		}

		column := flt.Field
		if flt.Normalize == domain.NormalizeDigits {
			column = digitsExpr(column)
		}

		value := flt.Value
		if flt.CaseInsensitive {
			column = "UPPER(" + column + ")"
			if s, ok := value.(string); ok {
				value = strings.ToUpper(s)
			}
		}

		placeholder := "?"
		if dialect == domain.DialectOracle {
			placeholder = fmt.Sprintf(":%d", len(params)+1)
		}
		clauses = append(clauses, column+" "+op+" "+placeholder)
		params = append(params, value)
	}

	return strings.Join(clauses, " AND "), params
}

// digitsExpr strips phone-style punctuation from a column before comparison.
func digitsExpr(field string) string {
	return "REPLACE(REPLACE(REPLACE(REPLACE(" + field + ", '-', ''), ' ', ''), '(', ''), ')', '')"
}

func buildOrderBy(terms []domain.OrderBy) string {
	var parts []string
	for _, o := range terms {
		if !isIdentifier(o.Field) {
			continue
		}
		dir := strings.ToUpper(o.Direction)
		if dir != "ASC" && dir != "DESC" {
			dir = "ASC"
		}
		parts = append(parts, o.Field+" "+dir)
	}
	return strings.Join(parts, ", ")
}
