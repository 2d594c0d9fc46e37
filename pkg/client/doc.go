// Package client is the Go SDK for the proofs API served by proofsd.
//
// It wraps the HTTP surface: listing and searching the merged ledger,
// verifying candidate text against anchored digests, enshrining new
// promises and changing their status.
//
// # Connecting
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithCacheTTL(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Verifying a promise
//
// Verify hashes nothing locally; the server computes the digest of the exact
// text supplied and reports whether an anchored record carries it:
//
//	res, err := c.Verify(ctx, "I will ship the beta by Friday")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if res.Matched {
//	    fmt.Println("anchored by", res.Proof.CreatorDisplayName)
//	}
//
// A non-match is not an error.
//
// # Writing
//
// Enshrine, UpdateStatus and ToggleReveal require a node started with a
// transaction submitter. A read-only node answers with ErrReadOnly.
package client
