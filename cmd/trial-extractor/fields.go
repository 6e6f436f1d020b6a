// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print the field catalog grouped by chunk",
	Long: `Fields prints every field the extractor asks for, grouped by the chunk that
requests it, with its scope, semantic type and vocabulary. Use --vocab to
print the allowed values of one vocabulary instead.`,
	Args: cobra.NoArgs,
	RunE: runFields,
}

func init() {
	fieldsCmd.Flags().Int("chunk", -1, "only print this chunk")
	fieldsCmd.Flags().String("vocab", "", "print the values of one vocabulary")

	rootCmd.AddCommand(fieldsCmd)
}

func runFields(cmd *cobra.Command, args []string) error {
	cat := catalog.Default()

	if vocab, _ := cmd.Flags().GetString("vocab"); vocab != "" {
		values := cat.Vocabulary(vocab)
		if len(values) == 0 {
			return fmt.Errorf("unknown vocabulary %q", vocab)
		}
		for _, v := range values {
			fmt.Println(v)
		}
		return nil
	}

	only, _ := cmd.Flags().GetInt("chunk")
	count := 0
	for _, ch := range cat.Chunks() {
		if only >= 0 && ch.ID != only {
			continue
		}
		fmt.Fprintf(os.Stdout, "Chunk %d: %s (%s)\n", ch.ID, ch.Title, ch.Scope)
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
		for _, f := range ch.Asked() {
			d, ok := cat.Descriptor(f)
			if !ok {
				continue
			}
			fmt.Fprintf(os.Stdout, "  %-60s  %-12s  %-18s  %s\n",
				truncate(string(d.Name), 60), d.Scope, d.Type, describeRule(d))
			count++
		}
		fmt.Fprintln(os.Stdout)
	}
	if only >= 0 && count == 0 {
		return fmt.Errorf("no chunk %d", only)
	}
	fmt.Fprintf(os.Stdout, "%d fields\n", count)
	return nil
}

// describeRule names the vocabulary or safety class that constrains a field.
func describeRule(d catalog.Descriptor) string {
	var parts []string
	if d.Vocabulary != "" {
		parts = append(parts, "vocab="+d.Vocabulary)
	}
	if d.Category == types.CategorySafety && d.Class != "" {
		parts = append(parts, "class="+string(d.Class))
	}
	return strings.Join(parts, " ")
}
