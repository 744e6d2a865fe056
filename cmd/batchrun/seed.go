package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utkarsh5026/batchrun/internal/demo"
	"github.com/utkarsh5026/batchrun/store"
)

const seedChunk = 1000

func newSeedCommand() *cobra.Command {
	var (
		count int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Append generated documents to the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}

			dir, _ := cmd.Flags().GetString("db")
			prefix, _ := cmd.Flags().GetString("prefix")

			st, err := store.Open[demo.Document](store.Options{Dir: dir, Prefix: prefix, Sync: true})
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			docs := demo.Generate(count, seed)
			for start := 0; start < len(docs); start += seedChunk {
				end := min(start+seedChunk, len(docs))
				if err := st.Append(cmd.Context(), docs[start:end]...); err != nil {
					return fmt.Errorf("append documents %d-%d: %w", start, end, err)
				}
			}

			total, _ := st.Count(cmd.Context())
			_, _ = green.Printf("✓ Seeded %d documents into %s (%d total)\n", count, dir, total)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 10_000, "number of documents to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "generator seed")
	return cmd
}
