package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/BaseProofs/internal/classifier"
	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/payload"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
	"github.com/jmerrifield20/BaseProofs/internal/reconciler"
	"github.com/jmerrifield20/BaseProofs/internal/scanner"
)

// readText returns the single positional argument, or the contents of file,
// or stdin. The bytes are used exactly as read.
func readText(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("pass either text or --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

// ── digest ───────────────────────────────────────────────────────────────────

var (
	digestFile  string
	digestCheck string
)

var digestCmd = &cobra.Command{
	Use:   "digest [text]",
	Short: "Compute the Keccak-256 digest of promise text",
	Long: `Digest prints the 0x-prefixed Keccak-256 digest of the exact text given.

No normalisation is applied: a trailing newline or a different letter case
produces a different digest. Text is taken from the argument, --file, or stdin.

  proofs digest "I will ship the beta by Friday"
  proofs digest --file promise.txt --check 0x9c22...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDigest,
}

func init() {
	digestCmd.Flags().StringVar(&digestFile, "file", "", "Read the text from a file")
	digestCmd.Flags().StringVar(&digestCheck, "check", "", "Compare against an expected digest")
}

func runDigest(cmd *cobra.Command, args []string) error {
	text, err := readText(args, digestFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	d := digest.Of(text)

	out := struct {
		Digest  string `json:"digest" yaml:"digest"`
		Matched *bool  `json:"matched,omitempty" yaml:"matched,omitempty"`
	}{Digest: d}

	if digestCheck != "" {
		want, ok := digest.Normalize(digestCheck)
		if !ok {
			return fmt.Errorf("invalid digest %q", digestCheck)
		}
		matched := want == d
		out.Matched = &matched
	}

	return render(cmd.OutOrStdout(), outputFormat, out, func(w io.Writer) error {
		fmt.Fprintln(w, d)
		if out.Matched != nil {
			fmt.Fprintln(w, verdict(*out.Matched))
		}
		return nil
	})
}

// ── encode ───────────────────────────────────────────────────────────────────

var (
	encAnonymous bool
	encName      string
	encFile      string
	encState     string
	encAt        string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build anchor call data for a promise or a status update",
}

var encodeMetadataCmd = &cobra.Command{
	Use:   "metadata [text]",
	Short: "Encode a new promise as anchorProof call data",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(args, encFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		p, err := payload.EncodeMetadata(payload.Metadata{
			Content:     text,
			IsAnonymous: encAnonymous,
			DisplayName: encName,
		})
		if err != nil {
			return err
		}
		return printCallData(cmd.OutOrStdout(), digest.Of(text), payload.CallData(digest.Bytes(text), p), p)
	},
}

var encodeStatusCmd = &cobra.Command{
	Use:   "status <digest>",
	Short: "Encode a status update as anchorProof call data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, ok := digest.Normalize(args[0])
		if !ok {
			return fmt.Errorf("invalid digest %q", args[0])
		}
		state, ok := payload.StateFor(promise.Status(strings.ToLower(encState)))
		if !ok {
			return fmt.Errorf("--state must be fulfilled or voided, got %q", encState)
		}
		at := time.Now().UTC()
		if encAt != "" {
			t, err := time.Parse(time.RFC3339, encAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			at = t
		}
		p := payload.EncodeStatus(payload.StatusUpdate{State: state, Digest: target, ClaimedAt: at})
		nonce := payload.NonceDigest(p)
		return printCallData(cmd.OutOrStdout(), hexutil.Encode(nonce[:]), payload.CallData(nonce, p), p)
	},
}

func init() {
	encodeMetadataCmd.Flags().BoolVar(&encAnonymous, "anonymous", false, "Mark the promise anonymous")
	encodeMetadataCmd.Flags().StringVar(&encName, "name", "", "Creator display name")
	encodeMetadataCmd.Flags().StringVar(&encFile, "file", "", "Read the text from a file")
	encodeStatusCmd.Flags().StringVar(&encState, "state", "fulfilled", "Target state: fulfilled or voided")
	encodeStatusCmd.Flags().StringVar(&encAt, "at", "", "Claimed time, RFC 3339 (default now)")

	encodeCmd.AddCommand(encodeMetadataCmd)
	encodeCmd.AddCommand(encodeStatusCmd)
}

func printCallData(w io.Writer, anchor string, callData, p []byte) error {
	out := struct {
		Anchor   string `json:"anchor_digest" yaml:"anchor_digest"`
		Payload  string `json:"payload" yaml:"payload"`
		CallData string `json:"call_data" yaml:"call_data"`
	}{anchor, string(p), hexutil.Encode(callData)}

	return render(w, outputFormat, out, func(w io.Writer) error {
		fmt.Fprintf(w, "Anchor:    %s\n", out.Anchor)
		fmt.Fprintf(w, "Payload:   %s\n", out.Payload)
		fmt.Fprintf(w, "Call data: %s\n", out.CallData)
		return nil
	})
}

// ── decode ───────────────────────────────────────────────────────────────────

var decodeRaw bool

var decodeCmd = &cobra.Command{
	Use:   "decode <0xhex>",
	Short: "Decode anchor call data (or a bare payload with --raw)",
	Long: `Decode runs the same ordered decode attempts the ledger uses:
metadata JSON, then STATUS:, then plain text. Undecodable bytes are
reported, never rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeRaw, "raw", false, "Input is a payload without the 36-byte call prefix")
}

type decodeView struct {
	Kind        string `json:"kind" yaml:"kind"`
	Anchor      string `json:"anchor_digest,omitempty" yaml:"anchor_digest,omitempty"`
	Content     string `json:"content,omitempty" yaml:"content,omitempty"`
	Anonymous   bool   `json:"anonymous,omitempty" yaml:"anonymous,omitempty"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	State       string `json:"state,omitempty" yaml:"state,omitempty"`
	Target      string `json:"target_digest,omitempty" yaml:"target_digest,omitempty"`
	ClaimedAt   string `json:"claimed_at,omitempty" yaml:"claimed_at,omitempty"`
}

func decodeInput(input []byte, raw bool) decodeView {
	var (
		d      payload.Decoded
		anchor string
	)
	if raw {
		d = payload.Decode(input)
	} else {
		arg, _, _ := payload.SplitCallData(input)
		if len(input) >= payload.PrefixLen {
			anchor = hexutil.Encode(arg[:])
		}
		d = payload.DecodeCallData(input)
	}

	v := decodeView{Kind: d.Kind.String(), Anchor: anchor}
	switch d.Kind {
	case payload.KindMetadata:
		v.Content = d.Metadata.Content
		v.Anonymous = d.Metadata.IsAnonymous
		v.DisplayName = d.Metadata.DisplayName
	case payload.KindStatus:
		v.State = string(d.Status.State)
		v.Target = d.Status.Digest
		v.ClaimedAt = d.Status.ClaimedAt.UTC().Format(time.RFC3339Nano)
	default:
		v.Content = d.Content()
	}
	return v
}

func runDecode(cmd *cobra.Command, args []string) error {
	input, err := hexutil.Decode(args[0])
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	v := decodeInput(input, decodeRaw)

	return render(cmd.OutOrStdout(), outputFormat, v, func(w io.Writer) error {
		fmt.Fprintf(w, "Kind:      %s\n", v.Kind)
		if v.Anchor != "" {
			fmt.Fprintf(w, "Anchor:    %s\n", v.Anchor)
		}
		switch v.Kind {
		case payload.KindStatus.String():
			fmt.Fprintf(w, "State:     %s\n", v.State)
			fmt.Fprintf(w, "Target:    %s\n", v.Target)
			fmt.Fprintf(w, "Claimed:   %s\n", v.ClaimedAt)
		default:
			if v.DisplayName != "" {
				fmt.Fprintf(w, "Name:      %s\n", v.DisplayName)
			}
			if v.Anonymous {
				fmt.Fprintln(w, "Anonymous: yes")
			}
			fmt.Fprintf(w, "Content:   %s\n", v.Content)
		}
		return nil
	})
}

// ── scan ─────────────────────────────────────────────────────────────────────

var (
	scanRPC       string
	scanContract  string
	scanFrom      uint64
	scanTo        uint64
	scanOrder     string
	scanNoReverse bool
	scanEvents    bool
	scanTimeout   time.Duration
	scanVerbose   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the anchor contract directly and print the reconciled ledger",
	Long: `Scan reads anchor events straight from a JSON-RPC endpoint, classifies
them, and prints the reconciled records without a running proofsd.

  proofs scan --rpc https://sepolia.base.org --contract 0xabc... --from 1200000`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRPC, "rpc", "", "JSON-RPC URL (default chain.rpc_url from config)")
	scanCmd.Flags().StringVar(&scanContract, "contract", "", "Anchor contract address (default chain.contract from config)")
	scanCmd.Flags().Uint64Var(&scanFrom, "from", 0, "First block")
	scanCmd.Flags().Uint64Var(&scanTo, "to", 0, "Last block (0 = latest)")
	scanCmd.Flags().StringVar(&scanOrder, "order", "apply", "Status update order: apply or timestamp")
	scanCmd.Flags().BoolVar(&scanNoReverse, "no-reversal", false, "Ignore status updates on terminal records")
	scanCmd.Flags().BoolVar(&scanEvents, "events", false, "Print classified events instead of records")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 60*time.Second, "Overall scan deadline")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "Log fetch progress to stderr")
}

// chainScan runs scan and classify against the configured contract.
func chainScan(ctx context.Context) ([]classifier.Creation, []classifier.StatusUpdate, error) {
	rpcURL := scanRPC
	if rpcURL == "" {
		rpcURL = viper.GetString("chain.rpc_url")
	}
	contractHex := scanContract
	if contractHex == "" {
		contractHex = viper.GetString("chain.contract")
	}
	if rpcURL == "" {
		return nil, nil, errors.New("no RPC URL: pass --rpc or set chain.rpc_url")
	}
	if !common.IsHexAddress(contractHex) {
		return nil, nil, fmt.Errorf("invalid contract address %q", contractHex)
	}

	logger := zap.NewNop()
	if scanVerbose {
		logger, _ = zap.NewDevelopment()
	}

	src, err := scanner.DialEth(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()

	sc := scanner.New(src, scanner.Config{RequestsPerSecond: viper.GetFloat64("scanner.rps")}, logger)
	var to *big.Int
	if scanTo > 0 {
		to = new(big.Int).SetUint64(scanTo)
	}
	events, err := sc.Scan(ctx, common.HexToAddress(contractHex), new(big.Int).SetUint64(scanFrom), to)
	if err != nil {
		return nil, nil, err
	}
	if ctx.Err() != nil {
		return nil, nil, fmt.Errorf("scan did not finish before the deadline: %w", ctx.Err())
	}
	creations, updates := classifier.ClassifyAll(events)
	return creations, updates, nil
}

func scanPolicy() (reconciler.Policy, error) {
	order, err := reconciler.ParseOrder(scanOrder)
	if err != nil {
		return reconciler.Policy{}, err
	}
	return reconciler.Policy{Order: order, AllowReversal: !scanNoReverse}, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	policy, err := scanPolicy()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()

	creations, updates, err := chainScan(ctx)
	if err != nil {
		return err
	}

	if scanEvents {
		return printEvents(cmd.OutOrStdout(), creations, updates)
	}

	records := reconciler.Reconcile(creations, updates, policy)
	rows := make([]proofRow, len(records))
	for i, r := range records {
		rows[i] = rowFromRecord(r)
	}
	now := time.Now()
	return render(cmd.OutOrStdout(), outputFormat, rows, func(w io.Writer) error {
		if len(rows) == 0 {
			fmt.Fprintln(w, "no proofs anchored in range")
			return nil
		}
		return writeProofTable(w, rows, now)
	})
}

type eventRow struct {
	Kind    string    `json:"kind" yaml:"kind"`
	Tx      string    `json:"tx" yaml:"tx"`
	Creator string    `json:"creator" yaml:"creator"`
	Digest  string    `json:"digest" yaml:"digest"`
	Detail  string    `json:"detail" yaml:"detail"`
	At      time.Time `json:"at" yaml:"at"`
}

func printEvents(w io.Writer, creations []classifier.Creation, updates []classifier.StatusUpdate) error {
	rows := make([]eventRow, 0, len(creations)+len(updates))
	for _, c := range creations {
		rows = append(rows, eventRow{
			Kind:    "creation/" + c.Payload.Kind.String(),
			Tx:      c.TransactionID,
			Creator: c.CreatorAddress,
			Digest:  c.Digest,
			Detail:  truncate(c.Payload.Content(), 48),
			At:      c.BlockTimestamp,
		})
	}
	for _, u := range updates {
		rows = append(rows, eventRow{
			Kind:    "status",
			Tx:      u.TransactionID,
			Creator: u.CreatorAddress,
			Digest:  u.TargetDigest,
			Detail:  string(u.TargetState),
			At:      u.BlockTimestamp,
		})
	}

	return render(w, outputFormat, rows, func(w io.Writer) error {
		for _, r := range rows {
			fmt.Fprintf(w, "%-22s %s %s %s\n", r.Kind, digest.Short(r.Digest), r.Creator, r.Detail)
		}
		return nil
	})
}

func rowFromRecord(r promise.Record) proofRow {
	return proofRow{
		ID:        r.ID,
		Digest:    r.Digest,
		Status:    string(r.Status),
		Category:  string(r.Category),
		Creator:   r.CreatorDisplayName,
		Address:   r.CreatorAddress,
		CreatedAt: r.CreatedAt,
		Deadline:  r.Deadline,
		Content:   r.Content,
		Hidden:    !r.Revealed,
		TxID:      r.SourceTxID,
	}
}
