package domain

import "context"

// TableCatalog lists the tables the pipeline is authorized to query.
type TableCatalog interface {
	ListTables(ctx context.Context) ([]TableDescriptor, error)
}

// ExemplarStore retrieves stored dialogue examples near the given text.
// Lookup failures fail open: callers proceed without examples.
type ExemplarStore interface {
	NearestExamples(ctx context.Context, text string, k int) ([]Example, error)
}

// TrainedPlanStore persists question→plan associations. Append is
// write-once; entries are never mutated.
type TrainedPlanStore interface {
	Append(ctx context.Context, entry *TrainedPlanEntry) error
	LoadAll(ctx context.Context) ([]TrainedPlanEntry, error)
}

// ExecutionBackend runs a compiled read-only query and returns row maps.
type ExecutionBackend interface {
	Execute(ctx context.Context, query *CompiledQuery) ([]string, []Row, error)
}

// CompletionRequest is one call to the reasoning service.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer produces free-form text from the reasoning service. The text is
// expected, but not guaranteed, to contain JSON.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
