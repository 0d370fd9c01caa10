package domain

// Dialect tags the SQL flavor a plan compiles to and the backend that
// executes it.
type Dialect string

const (
	DialectOracle Dialect = "oracle"
	DialectSQLite Dialect = "sqlite"
)

// Aggregate functions accepted in a SELECT plan.
const (
	AggCount = "COUNT"
	AggSum   = "SUM"
	AggAvg   = "AVG"
	AggMin   = "MIN"
	AggMax   = "MAX"
)

// Filter operators accepted in a SELECT plan.
const (
	OpEq   = "="
	OpLike = "LIKE"
	OpGt   = ">"
	OpGte  = ">="
	OpLt   = "<"
	OpLte  = "<="
)

// NormalizeDigits strips phone-style punctuation from the column before
// comparison.
const NormalizeDigits = "digits"

// Aggregation is one aggregate expression in a SELECT plan projection.
type Aggregation struct {
	Func  string
	Field string // column name, or "*" (COUNT only)
	Alias string // optional
}

// Filter is one predicate in a SELECT plan.
type Filter struct {
	Field           string
	Op              string
	Value           interface{}
	CaseInsensitive bool
	Normalize       string // "" or NormalizeDigits
}

// OrderBy is one ordering term in a SELECT plan.
type OrderBy struct {
	Field     string
	Direction string // "ASC" or "DESC"
}

// SemanticPlan is the validated, dialect-independent representation of a
// data request. It is a closed union: *SelectPlan or *RawPlan.
type SemanticPlan interface {
	isSemanticPlan()
	PlanDialect() Dialect
}

// SelectPlan is a structured single-table SELECT.
type SelectPlan struct {
	Table        string
	Schema       string
	Fields       []string
	Aggregations []Aggregation
	Filters      []Filter
	GroupBy      string
	OrderBy      []OrderBy
	Limit        int
	Dialect      Dialect
}

func (*SelectPlan) isSemanticPlan() {}

// PlanDialect returns the dialect the plan compiles to.
func (p *SelectPlan) PlanDialect() Dialect { return p.Dialect }

// RawPlan carries a pre-written SELECT statement that passed the raw-SQL
// guard. It is executed verbatim, without parameters.
type RawPlan struct {
	SQL     string
	Dialect Dialect
}

func (*RawPlan) isSemanticPlan() {}

// PlanDialect returns the dialect the statement targets.
func (p *RawPlan) PlanDialect() Dialect { return p.Dialect }

// CompiledQuery is the deterministic output of the plan compiler.
type CompiledQuery struct {
	SQL     string
	Params  []interface{}
	Dialect Dialect
}

// Row is one result row keyed by column name.
type Row map[string]interface{}

// PlanDocument is the untrusted, loosely-typed plan shape received from the
// reasoning service or loaded from the trained-plan store. Nothing in it is
// trusted until the validator has sanitized it against the live catalog.
type PlanDocument struct {
	Action       string              `json:"action,omitempty"`
	Type         string              `json:"type,omitempty"`
	Table        string              `json:"table,omitempty"`
	Schema       string              `json:"schema,omitempty"`
	Fields       []string            `json:"fields,omitempty"`
	Aggregations []AggregationFields `json:"aggregations,omitempty"`
	Filters      []FilterFields      `json:"filters,omitempty"`
	GroupBy      string              `json:"group_by,omitempty"`
	OrderBy      []OrderByFields     `json:"order_by,omitempty"`
	Limit        interface{}         `json:"limit,omitempty"`
	SQL          string              `json:"sql,omitempty"`
	Dialect      string              `json:"dialect,omitempty"`
	Confidence   float64             `json:"confidence,omitempty"`
}

// AggregationFields mirrors Aggregation for untrusted JSON.
type AggregationFields struct {
	Func  string `json:"func"`
	Field string `json:"field"`
	Alias string `json:"as,omitempty"`
}

// FilterFields mirrors Filter for untrusted JSON.
type FilterFields struct {
	Field           string      `json:"field"`
	Op              string      `json:"op"`
	Value           interface{} `json:"value"`
	CaseInsensitive bool        `json:"case_insensitive,omitempty"`
	Normalize       string      `json:"normalize,omitempty"`
}

// OrderByFields mirrors OrderBy for untrusted JSON.
type OrderByFields struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// IsEmpty reports whether the document carries no plan content at all.
func (d *PlanDocument) IsEmpty() bool {
	if d == nil {
		return true
	}
	return d.Action == "" && d.Type == "" && d.Table == "" && d.SQL == "" &&
		len(d.Fields) == 0 && len(d.Aggregations) == 0 && len(d.Filters) == 0
}

// Document converts a validated SELECT plan back into its storable document
// form, used when persisting trained-plan entries.
func (p *SelectPlan) Document() *PlanDocument {
	doc := &PlanDocument{
		Type:    "SELECT",
		Table:   p.Table,
		Schema:  p.Schema,
		Fields:  p.Fields,
		GroupBy: p.GroupBy,
		Limit:   p.Limit,
		Dialect: string(p.Dialect),
	}
	for _, a := range p.Aggregations {
		doc.Aggregations = append(doc.Aggregations, AggregationFields{Func: a.Func, Field: a.Field, Alias: a.Alias})
	}
	for _, f := range p.Filters {
		doc.Filters = append(doc.Filters, FilterFields{
			Field:           f.Field,
			Op:              f.Op,
			Value:           f.Value,
			CaseInsensitive: f.CaseInsensitive,
			Normalize:       f.Normalize,
		})
	}
	for _, o := range p.OrderBy {
		doc.OrderBy = append(doc.OrderBy, OrderByFields{Field: o.Field, Direction: o.Direction})
	}
	return doc
}
