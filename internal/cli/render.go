package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"datachat/internal/domain"
)

// jsonReply is the machine-readable reply shape for --json output.
type jsonReply struct {
	Kind       string       `json:"kind"` // "chat" or "data"
	Text       string       `json:"text,omitempty"`
	Summary    string       `json:"summary,omitempty"`
	Columns    []string     `json:"columns,omitempty"`
	Rows       []domain.Row `json:"rows,omitempty"`
	TablesUsed []string     `json:"tables_used,omitempty"`
	SQL        string       `json:"sql,omitempty"`
	NoData     bool         `json:"no_data,omitempty"`
	Error      string       `json:"error,omitempty"`
}

func renderReply(w io.Writer, reply domain.Reply, showSQL, asJSON bool) error {
	if asJSON {
		return renderJSON(w, reply)
	}

	switch r := reply.(type) {
	case *domain.ChatReply:
		fmt.Fprintln(w, r.Text)
	case *domain.DataReply:
		if r.Err != "" {
			fmt.Fprintln(w, r.Err)
		} else {
			fmt.Fprintln(w, r.Summary)
		}
		if showSQL && r.SQL != "" {
			fmt.Fprintf(w, "\nSQL: %s\n", r.SQL)
		}
	default:
		return fmt.Errorf("unknown reply type %T", reply)
	}
	return nil
}

func renderJSON(w io.Writer, reply domain.Reply) error {
	var out jsonReply
	switch r := reply.(type) {
	case *domain.ChatReply:
		out = jsonReply{Kind: "chat", Text: r.Text}
	case *domain.DataReply:
		out = jsonReply{
			Kind:       "data",
			Summary:    r.Summary,
			Columns:    r.Columns,
			Rows:       r.Rows,
			TablesUsed: r.TablesUsed,
			SQL:        r.SQL,
			NoData:     r.NoData,
			Error:      r.Err,
		}
	default:
		return fmt.Errorf("unknown reply type %T", reply)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
