package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/jmerrifield20/BaseProofs/internal/digest"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	okStyle   = color.New(color.FgGreen, color.Bold)
	failStyle = color.New(color.FgRed, color.Bold)
	warnStyle = color.New(color.FgYellow)
	dimStyle  = color.New(color.Faint)
)

func disableColor() {
	color.NoColor = true
}

// render writes v as JSON or YAML, or calls text for the human format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return text(w)
}

// proofRow is the tabular and structured view of one record.
type proofRow struct {
	ID        string     `json:"id" yaml:"id"`
	Digest    string     `json:"digest" yaml:"digest"`
	Status    string     `json:"status" yaml:"status"`
	Category  string     `json:"category" yaml:"category"`
	Creator   string     `json:"creator" yaml:"creator"`
	Address   string     `json:"creator_address,omitempty" yaml:"creator_address,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	Deadline  *time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Content   string     `json:"content" yaml:"content"`
	Hidden    bool       `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	TxID      string     `json:"tx_id,omitempty" yaml:"tx_id,omitempty"`
}

func writeProofTable(w io.Writer, rows []proofRow, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIGEST\tSTATUS\tCATEGORY\tCREATOR\tAGE\tCONTENT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			digest.Short(r.Digest),
			statusLabel(r.Status),
			r.Category,
			r.Creator,
			age(r.CreatedAt, now),
			contentCell(r),
		)
	}
	return tw.Flush()
}

func writeProofDetail(w io.Writer, r proofRow, now time.Time) error {
	fmt.Fprintf(w, "ID:        %s\n", r.ID)
	fmt.Fprintf(w, "Digest:    %s\n", r.Digest)
	fmt.Fprintf(w, "Status:    %s\n", statusLabel(r.Status))
	fmt.Fprintf(w, "Category:  %s\n", r.Category)
	fmt.Fprintf(w, "Creator:   %s\n", r.Creator)
	if r.Address != "" && r.Address != r.Creator {
		fmt.Fprintf(w, "Address:   %s\n", r.Address)
	}
	fmt.Fprintf(w, "Created:   %s (%s)\n", r.CreatedAt.Format(time.RFC3339), age(r.CreatedAt, now))
	if r.Deadline != nil {
		fmt.Fprintf(w, "Deadline:  %s\n", deadlineLabel(*r.Deadline, now))
	}
	if r.TxID != "" {
		fmt.Fprintf(w, "Tx:        %s\n", r.TxID)
	}
	fmt.Fprintf(w, "Content:   %s\n", contentCell(r))
	return nil
}

func statusLabel(s string) string {
	switch s {
	case "fulfilled":
		return okStyle.Sprint(s)
	case "voided":
		return failStyle.Sprint(s)
	}
	return warnStyle.Sprint(s)
}

func verdict(matched bool) string {
	if matched {
		return okStyle.Sprint("MATCH")
	}
	return failStyle.Sprint("NO MATCH")
}

func contentCell(r proofRow) string {
	if r.Hidden {
		return dimStyle.Sprint("(hidden)")
	}
	return truncate(r.Content, 60)
}

func age(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func deadlineLabel(d, now time.Time) string {
	label := d.Format(time.DateOnly) + " (" + humanize.RelTime(d, now, "ago", "from now") + ")"
	if d.Before(now) {
		return warnStyle.Sprint(label)
	}
	return label
}

// truncate shortens s to at most n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
