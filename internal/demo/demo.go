// Package demo is the job the batchrun CLI runs: it indexes documents from a
// store into an in-memory index through a small pool of connections, using
// CEL rules to reject or flag documents.
package demo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/utkarsh5026/batchrun/batch"
	"github.com/utkarsh5026/batchrun/internal/rules"
)

// Document is the record stored by `batchrun seed`.
type Document struct {
	ID      string   `msgpack:"id"`
	Title   string   `msgpack:"title"`
	Body    string   `msgpack:"body"`
	Tags    []string `msgpack:"tags"`
	Version int      `msgpack:"version"`
}

// Indexed is emitted for every document written to the index.
type Indexed struct {
	ID      string
	Version int
	Created bool
	ConnID  int
}

var words = []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}

// Generate returns n deterministic documents. Roughly one in twenty has an
// empty body and one in ten is tagged draft, so the default rules have
// something to report. Documents reuse ids, so later versions update earlier
// ones.
func Generate(n int, seed uint64) []Document {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) // #nosec G404 -- test data

	docs := make([]Document, n)
	for i := range docs {
		id := i
		if i > 0 && rng.IntN(10) == 0 {
			id = rng.IntN(i)
		}

		var body []string
		if rng.IntN(20) != 0 {
			for range 3 + rng.IntN(20) {
				body = append(body, words[rng.IntN(len(words))])
			}
		}

		tags := []string{words[rng.IntN(len(words))]}
		if rng.IntN(10) == 0 {
			tags = append(tags, "draft")
		}

		docs[i] = Document{
			ID:      fmt.Sprintf("doc-%06d", id),
			Title:   fmt.Sprintf("Document %d", id),
			Body:    strings.Join(body, " "),
			Tags:    tags,
			Version: 1 + rng.IntN(5),
		}
	}
	return docs
}

// Indexer writes documents to an Index.
type Indexer struct {
	Rules *rules.Rules
}

// Work is the batch.WorkFunc of the demo job.
func (ix *Indexer) Work(ctx context.Context, conn *Conn, item batch.WorkItem[Document], wc *batch.WorkContext) error {
	doc := item.Payload

	verdict, err := ix.Rules.Classify(rules.Record{
		ID:      doc.ID,
		Title:   doc.Title,
		Body:    doc.Body,
		Tags:    doc.Tags,
		Version: doc.Version,
	})
	switch {
	case err != nil:
		return batch.ItemFailed(doc.ID, err)
	case verdict == rules.Fail:
		return batch.ItemFailed(doc.ID, errors.New("rejected by error rule"))
	case verdict == rules.Warn:
		wc.Warn(doc.ID)
	}

	created, err := conn.Put(ctx, doc.ID, doc.Version)
	if err != nil {
		return err
	}
	if created {
		wc.Created(doc.ID)
	} else {
		wc.Updated(doc.ID)
	}
	wc.Emit(Indexed{ID: doc.ID, Version: doc.Version, Created: created, ConnID: conn.ID})
	return nil
}
