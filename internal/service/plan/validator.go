package plan

import (
	"strconv"
	"strings"

	"datachat/internal/domain"
)

// forbiddenRawWords rejects any raw statement that could mutate state, even
// when it hides behind a leading SELECT.
var forbiddenRawWords = []string{"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE", "ALTER", "GRANT"}

// Validator sanitizes untrusted plan documents against the live catalog.
// Table resolution fails closed; unknown columns are silently dropped.
type Validator struct {
	defaultLimit int
	maxLimit     int
}

// NewValidator creates a Validator with the given row-limit clamps.
func NewValidator(defaultLimit, maxLimit int) *Validator {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit <= 0 {
		maxLimit = 200
	}
	return &Validator{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Validate turns an untrusted document into a validated SemanticPlan, or a
// *domain.PlanError from the closed taxonomy. Nothing from the document
// reaches the compiler unchecked.
func (v *Validator) Validate(doc *domain.PlanDocument, tables []domain.TableDescriptor) (domain.SemanticPlan, error) {
	if doc.IsEmpty() {
		return nil, domain.ErrPlan(domain.KindPlanEmpty)
	}

	kind := strings.ToUpper(strings.TrimSpace(doc.Type))
	if kind == "" {
		kind = strings.ToUpper(strings.TrimSpace(doc.Action))
	}

	switch kind {
	case "NONE":
		return nil, domain.ErrPlan(domain.KindPlanNone)
	case "RAW_SQL", "SQL":
		return v.validateRaw(doc)
	case "SELECT", "QUERY", "DATA_ANALYSIS":
		return v.validateSelect(doc, tables)
	default:
		// A bare SQL payload without a type tag is still a raw plan.
		if doc.SQL != "" {
			return v.validateRaw(doc)
		}
		return nil, domain.ErrPlan(domain.KindPlanInvalidType)
	}
}

func (v *Validator) validateRaw(doc *domain.PlanDocument) (domain.SemanticPlan, error) {
	stmt := strings.TrimSpace(doc.SQL)
	if stmt == "" {
		return nil, domain.ErrPlan(domain.KindPlanEmpty)
	}
	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "SELECT") {
		return nil, domain.ErrPlan(domain.KindRawSQLNotSelect)
	}
	for _, word := range forbiddenRawWords {
		if containsWord(upper, word) {
			return nil, domain.ErrPlan(domain.KindRawSQLForbiddenCmd)
		}
	}
	return &domain.RawPlan{SQL: stmt, Dialect: resolveDialect(doc.Dialect)}, nil
}

func (v *Validator) validateSelect(doc *domain.PlanDocument, tables []domain.TableDescriptor) (domain.SemanticPlan, error) {
	if strings.TrimSpace(doc.Table) == "" {
		return nil, domain.ErrPlan(domain.KindPlanNoTable)
	}

	table := resolveTable(doc.Table, doc.Schema, tables)
	if table == nil {
		return nil, domain.ErrTableNotAuthorized(doc.Table)
	}

	columns := make(map[string]string, len(table.Columns))
	for _, c := range table.Columns {
		columns[strings.ToUpper(c.Name)] = c.Name
	}

	out := &domain.SelectPlan{
		Table:   table.Name,
		Schema:  table.Schema,
		Limit:   v.clampLimit(doc.Limit),
		Dialect: resolveDialect(doc.Dialect),
	}

	for _, f := range doc.Fields {
		if f == "*" {
			out.Fields = append(out.Fields, "*")
			continue
		}
		if canonical, ok := columns[strings.ToUpper(f)]; ok {
			out.Fields = append(out.Fields, canonical)
		}
	}

	for _, agg := range doc.Aggregations {
		fn := strings.ToUpper(strings.TrimSpace(agg.Func))
		switch fn {
		case domain.AggCount, domain.AggSum, domain.AggAvg, domain.AggMin, domain.AggMax:
		default:
			continue
		}
		field := strings.TrimSpace(agg.Field)
		if field == "" {
			field = "*"
		}
		if field != "*" {
			canonical, ok := columns[strings.ToUpper(field)]
			if !ok {
				continue
			}
			field = canonical
		}
		alias := agg.Alias
		if alias != "" && !isIdentifier(alias) {
			alias = ""
		}
		out.Aggregations = append(out.Aggregations, domain.Aggregation{Func: fn, Field: field, Alias: alias})
	}

	for _, flt := range doc.Filters {
		canonical, ok := columns[strings.ToUpper(strings.TrimSpace(flt.Field))]
		if !ok {
			continue
		}
		op := strings.ToUpper(strings.TrimSpace(flt.Op))
		switch op {
		case domain.OpEq, domain.OpLike, domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		default:
			op = domain.OpEq
		}
		normalize := ""
		if flt.Normalize == domain.NormalizeDigits {
			normalize = domain.NormalizeDigits
		}
		// LIKE is a human-text search; it is always case-insensitive.
		caseInsensitive := flt.CaseInsensitive || op == domain.OpLike
		out.Filters = append(out.Filters, domain.Filter{
			Field:           canonical,
			Op:              op,
			Value:           flt.Value,
			CaseInsensitive: caseInsensitive,
			Normalize:       normalize,
		})
	}

	if canonical, ok := columns[strings.ToUpper(strings.TrimSpace(doc.GroupBy))]; ok {
		out.GroupBy = canonical
	}

	for _, o := range doc.OrderBy {
		canonical, ok := columns[strings.ToUpper(strings.TrimSpace(o.Field))]
		if !ok {
			continue
		}
		dir := strings.ToUpper(strings.TrimSpace(o.Direction))
		if dir != "ASC" && dir != "DESC" {
			dir = "ASC"
		}
		out.OrderBy = append(out.OrderBy, domain.OrderBy{Field: canonical, Direction: dir})
	}

	return out, nil
}

// resolveTable finds the authorized table for a requested name: exact match
// on the bare name or schema-qualified short name first, then bidirectional
// substring match. Case-insensitive throughout.
func resolveTable(name, schema string, tables []domain.TableDescriptor) *domain.TableDescriptor {
	want := strings.ToUpper(strings.TrimSpace(name))
	if schema != "" && !strings.Contains(want, ".") {
		// Allow the document to express SCHEMA.TABLE in either field.
		if qualified := strings.ToUpper(strings.TrimSpace(schema)) + "." + want; qualified != "." {
			for i := range tables {
				if strings.ToUpper(tables[i].QualifiedName()) == qualified {
					return &tables[i]
				}
			}
		}
	}
	for i := range tables {
		if strings.ToUpper(tables[i].Name) == want || strings.ToUpper(tables[i].QualifiedName()) == want {
			return &tables[i]
		}
	}
	for i := range tables {
		have := strings.ToUpper(tables[i].Name)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return &tables[i]
		}
	}
	return nil
}

// clampLimit coerces the untrusted limit into [1, maxLimit]. Missing or
// non-numeric values fall back to the default.
func (v *Validator) clampLimit(raw interface{}) int {
	n, ok := toInt(raw)
	if !ok {
		return v.defaultLimit
	}
	if n < 1 {
		return 1
	}
	if n > v.maxLimit {
		return v.maxLimit
	}
	return n
}

func toInt(raw interface{}) (int, bool) {
	switch x := raw.(type) {
	case nil:
		return 0, false
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func resolveDialect(raw string) domain.Dialect {
	if strings.EqualFold(strings.TrimSpace(raw), string(domain.DialectSQLite)) {
		return domain.DialectSQLite
	}
	return domain.DialectOracle
}

// containsWord reports whether upper contains word bounded by non-identifier
// characters, so "UPDATED_AT" does not trip the "UPDATE" check.
func containsWord(upper, word string) bool {
	idx := 0
	for {
		i := strings.Index(upper[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(upper[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(upper) || !isWordByte(upper[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
