package domain

import "strings"

// Column describes one column of an authorized table.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	Comment    string
	PrimaryKey bool
}

// TableDescriptor is the catalog's view of one authorized table. It is
// immutable for the duration of a request; the catalog may return a
// different descriptor set on the next call.
type TableDescriptor struct {
	Name        string
	Schema      string
	Description string
	Keywords    []string // routing hints, e.g. "contato", "cliente"
	Columns     []Column
}

// QualifiedName returns "SCHEMA.NAME", or just the name when no schema is set.
func (t *TableDescriptor) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnNames returns the ordered column name list.
func (t *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasKeyword reports whether any routing keyword appears in the given
// normalized text.
func (t *TableDescriptor) HasKeyword(normalized string) bool {
	for _, kw := range t.Keywords {
		if kw != "" && strings.Contains(normalized, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
