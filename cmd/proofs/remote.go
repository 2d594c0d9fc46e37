package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/BaseProofs/internal/reconciler"
	"github.com/jmerrifield20/BaseProofs/internal/verifier"
	"github.com/jmerrifield20/BaseProofs/pkg/client"
)

var requestTimeout = 30 * time.Second

func newClient() (*client.Client, error) {
	return client.New(nodeURL, client.WithTimeout(requestTimeout))
}

func rowFromProof(p client.Proof) proofRow {
	return proofRow{
		ID:        p.ID,
		Digest:    p.Digest,
		Status:    p.Status,
		Category:  p.Category,
		Creator:   p.CreatorDisplayName,
		Address:   p.CreatorAddress,
		CreatedAt: p.CreatedAt,
		Deadline:  p.Deadline,
		Content:   p.Content,
		Hidden:    p.Hidden,
		TxID:      p.SourceTxID,
	}
}

func printProof(w io.Writer, p *client.Proof) error {
	row := rowFromProof(*p)
	return render(w, outputFormat, row, func(w io.Writer) error {
		return writeProofDetail(w, row, time.Now())
	})
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyFile  string
	verifyChain bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [text]",
	Short: "Check whether text exactly matches an anchored promise",
	Long: `Verify computes the digest of the exact text and looks for an anchored
promise with that digest. By default the proofsd node answers; --chain scans
the contract directly instead (see 'proofs scan --help' for its flags).

A non-match exits 0: it is an answer, not an error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "Read the text from a file")
	verifyCmd.Flags().BoolVar(&verifyChain, "chain", false, "Verify against a direct chain scan instead of the node")
	verifyCmd.Flags().StringVar(&scanRPC, "rpc", "", "JSON-RPC URL for --chain")
	verifyCmd.Flags().StringVar(&scanContract, "contract", "", "Anchor contract address for --chain")
	verifyCmd.Flags().Uint64Var(&scanFrom, "from", 0, "First block for --chain")
}

type verifyView struct {
	Matched bool      `json:"matched" yaml:"matched"`
	Digest  string    `json:"digest" yaml:"digest"`
	Proof   *proofRow `json:"proof,omitempty" yaml:"proof,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	text, err := readText(args, verifyFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	var v verifyView
	if verifyChain {
		creations, updates, err := chainScan(ctx)
		if err != nil {
			return err
		}
		res := verifier.Verify(text, reconciler.Reconcile(creations, updates, reconciler.DefaultPolicy()))
		v = verifyView{Matched: res.Matched, Digest: res.Digest}
		if res.Record != nil {
			row := rowFromRecord(*res.Record)
			v.Proof = &row
		}
	} else {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Verify(ctx, text)
		if err != nil {
			return err
		}
		v = verifyView{Matched: res.Matched, Digest: res.Digest}
		if res.Proof != nil {
			row := rowFromProof(*res.Proof)
			v.Proof = &row
		}
	}

	return render(cmd.OutOrStdout(), outputFormat, v, func(w io.Writer) error {
		fmt.Fprintf(w, "%s  %s\n", verdict(v.Matched), v.Digest)
		if v.Proof != nil {
			fmt.Fprintln(w)
			return writeProofDetail(w, *v.Proof, time.Now())
		}
		return nil
	})
}

// ── list / show ──────────────────────────────────────────────────────────────

var listOpts client.ListOptions

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List proofs known to the node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		proofs, err := c.List(ctx, listOpts)
		if err != nil {
			return err
		}
		rows := make([]proofRow, len(proofs))
		for i, p := range proofs {
			rows[i] = rowFromProof(p)
		}
		now := time.Now()
		return render(cmd.OutOrStdout(), outputFormat, rows, func(w io.Writer) error {
			if len(rows) == 0 {
				fmt.Fprintln(w, "no proofs found")
				return nil
			}
			return writeProofTable(w, rows, now)
		})
	},
}

func init() {
	listCmd.Flags().StringVarP(&listOpts.Query, "query", "q", "", "Search content and creator")
	listCmd.Flags().StringVar(&listOpts.Status, "status", "", "Filter by status: active, fulfilled or voided")
	listCmd.Flags().StringVar(&listOpts.Category, "category", "", "Filter by category")
	listCmd.Flags().StringVar(&listOpts.Creator, "creator", "", "Filter by creator address")
	listCmd.Flags().StringVar(&listOpts.Sort, "sort", "", "Sort order: newest, oldest or digest")
}

var showCmd = &cobra.Command{
	Use:   "show <id|digest|tx>",
	Short: "Show one proof",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		p, err := c.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printProof(cmd.OutOrStdout(), p)
	},
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger totals and the integrity score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, st, func(w io.Writer) error {
			fmt.Fprintf(w, "Total:      %s\n", humanize.Comma(int64(st.Total)))
			fmt.Fprintf(w, "Active:     %s\n", warnStyle.Sprint(humanize.Comma(int64(st.Active))))
			fmt.Fprintf(w, "Fulfilled:  %s\n", okStyle.Sprint(humanize.Comma(int64(st.Fulfilled))))
			fmt.Fprintf(w, "Voided:     %s\n", failStyle.Sprint(humanize.Comma(int64(st.Voided))))
			fmt.Fprintf(w, "Integrity:  %d%%\n", st.Integrity)
			return nil
		})
	},
}

// ── enshrine / status / reveal ───────────────────────────────────────────────

var (
	enshrineFile string
	enshrineReq  client.EnshrineRequest
	enshrineDue  string
	statusActor  string
)

var enshrineCmd = &cobra.Command{
	Use:   "enshrine [text]",
	Short: "Anchor a new promise through the node",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(args, enshrineFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		req := enshrineReq
		req.Content = text
		if enshrineDue != "" {
			due, err := parseDue(enshrineDue)
			if err != nil {
				return err
			}
			req.Deadline = &due
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		// Anchoring waits for the transaction to be mined.
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Minute)
		defer cancel()

		p, err := c.Enshrine(ctx, req)
		if err != nil {
			return err
		}
		return printProof(cmd.OutOrStdout(), p)
	},
}

func init() {
	enshrineCmd.Flags().StringVar(&enshrineFile, "file", "", "Read the text from a file")
	enshrineCmd.Flags().BoolVar(&enshrineReq.Anonymous, "anonymous", false, "Hide the creator name")
	enshrineCmd.Flags().StringVar(&enshrineReq.DisplayName, "name", "", "Creator display name")
	enshrineCmd.Flags().StringVar(&enshrineReq.Creator, "from", "", "Creator address (default: node's sender)")
	enshrineCmd.Flags().StringVar(&enshrineReq.Category, "category", "", "Personal, Work, Financial, Fitness or Other")
	enshrineCmd.Flags().StringVar(&enshrineDue, "deadline", "", "Deadline, YYYY-MM-DD or RFC 3339")
}

// parseDue accepts a date or an RFC 3339 timestamp.
func parseDue(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q: use YYYY-MM-DD or RFC 3339", s)
}

var statusCmd = &cobra.Command{
	Use:   "status <ref> <fulfilled|voided>",
	Short: "Mark a promise fulfilled or voided",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Minute)
		defer cancel()

		p, err := c.UpdateStatus(ctx, args[0], strings.ToLower(args[1]), statusActor)
		if err != nil {
			return err
		}
		return printProof(cmd.OutOrStdout(), p)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusActor, "from", "", "Acting address (default: node's sender)")
}

var revealCmd = &cobra.Command{
	Use:   "reveal <ref>",
	Short: "Toggle whether a promise's content is shown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		p, err := c.ToggleReveal(ctx, args[0])
		if err != nil {
			return err
		}
		return printProof(cmd.OutOrStdout(), p)
	},
}

// ── sync ─────────────────────────────────────────────────────────────────────

var syncShow bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ask the node to rescan the chain now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout+5*time.Second)
		defer cancel()

		var res *client.SyncResult
		if syncShow {
			r, ok, err := c.LastSync(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "node has not synced yet")
				return nil
			}
			res = r
		} else if res, err = c.Sync(ctx); err != nil {
			return err
		}

		return render(cmd.OutOrStdout(), outputFormat, res, func(w io.Writer) error {
			fmt.Fprintf(w, "Synced %s: %d events (%d creations, %d updates), %d records in %s\n",
				humanize.Time(res.At), res.Events, res.Creations, res.Updates, res.TotalRecords, res.Duration)
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncShow, "last", false, "Show the last sync instead of starting one")
}
