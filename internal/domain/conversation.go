package domain

import "time"

// Mode selects how aggressively the pipeline routes a question to data.
type Mode string

const (
	// ModeConversational prefers chat; low-confidence data intents are
	// answered conversationally.
	ModeConversational Mode = "conversational"
	// ModeForcedData prefers data; everything except plain greetings is
	// treated as a data question.
	ModeForcedData Mode = "forced-data"
)

// Turn is one prior exchange in the bounded conversation history.
type Turn struct {
	Role       string // "user" or "assistant"
	Content    string
	TablesUsed []string
}

// MaxTurnContent bounds how much of a prior turn is replayed into prompts.
const MaxTurnContent = 400

// TruncatedContent returns the turn content clipped to MaxTurnContent runes.
func (t Turn) TruncatedContent() string {
	runes := []rune(t.Content)
	if len(runes) <= MaxTurnContent {
		return t.Content
	}
	return string(runes[:MaxTurnContent])
}

// ChatReply is a conversational answer with no data attached.
type ChatReply struct {
	Text string
}

// DataReply is a data answer: rows plus the plan and SQL that produced them.
type DataReply struct {
	Columns     []string
	Rows        []Row
	TablesUsed  []string
	PlanSummary string
	SQL         string
	Summary     string // deterministic prose rendering of the rows
	NoData      bool   // true when both the original and broadened plans were empty
	// Err carries a human-readable execution failure; SQL stays populated
	// for diagnostics. Empty on success.
	Err string
}

// Reply is the closed union of pipeline outcomes: *ChatReply or *DataReply.
type Reply interface{ isReply() }

func (*ChatReply) isReply() {}
func (*DataReply) isReply() {}

// Example is a stored dialogue exemplar used for few-shot prompting.
type Example struct {
	ID       string
	Question string
	Answer   string
	Kind     string // "CHAT" or "DATA_ANALYSIS"
}

// TrainedPlanEntry associates a normalized question with a plan that
// produced a non-empty result. Entries are immutable once written and are
// re-validated against the live catalog at reuse time.
type TrainedPlanEntry struct {
	ID                 string
	Question           string
	NormalizedQuestion string
	Plan               *PlanDocument
	SQL                string
	Provenance         string // "oracle", "keyword", "broadened"
	CreatedAt          time.Time
}
