// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/export"
	"github.com/pdiddy/trial-extractor/internal/validate"
)

var qcCmd = &cobra.Command{
	Use:   "qc <extracted> <reference>",
	Short: "Compare extracted records against curated references",
	Long: `QC compares extracted records with hand-curated reference records, field by
field, and reports accuracy and every mismatch. Percentages and month values
match within a tolerance; other values match ignoring case.

Both arguments may be record files or directories. Directories are paired by
file name; references with no extracted counterpart are reported as missing.`,
	Args: cobra.ExactArgs(2),
	RunE: runQC,
}

func init() {
	qcCmd.Flags().Float64("pct-tolerance", validate.DefaultTolerances.Percentage, "allowed difference for percentage fields, in points")
	qcCmd.Flags().Float64("months-tolerance", validate.DefaultTolerances.Months, "allowed difference for month fields")
	qcCmd.Flags().Float64("min-accuracy", 0, "fail when overall accuracy is below this share (0-1)")
	qcCmd.Flags().Bool("json", false, "output reports as JSON")

	rootCmd.AddCommand(qcCmd)
}

func runQC(cmd *cobra.Command, args []string) error {
	pairs, err := qcPairs(args[0], args[1])
	if err != nil {
		return err
	}

	pct, _ := cmd.Flags().GetFloat64("pct-tolerance")
	months, _ := cmd.Flags().GetFloat64("months-tolerance")
	tol := validate.Tolerances{Percentage: pct, Months: months}
	cat := catalog.Default()

	var (
		reports           []validate.QCReport
		compared, matched int
		missing           []string
	)
	for _, p := range pairs {
		ref, err := export.ReadFile(p.reference)
		if err != nil {
			return err
		}
		if p.extracted == "" {
			missing = append(missing, filepath.Base(p.reference))
			continue
		}
		got, err := export.ReadFile(p.extracted)
		if err != nil {
			return err
		}
		q := validate.Compare(cat, got, ref, tol)
		reports = append(reports, q)
		compared += q.Compared
		matched += q.Matched
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, q := range reports {
			fmt.Printf("%s: %d/%d fields match (%.1f%%)\n", q.NCTNumber, q.Matched, q.Compared, 100*q.Accuracy())
			for _, name := range q.MissingArms {
				fmt.Printf("  missing arm %s\n", name)
			}
			for _, m := range q.Mismatches {
				arm := "shared"
				if m.ArmID != "" {
					arm = m.ArmID
				}
				fmt.Printf("  %-6s %s: got %q, want %q\n", arm, m.Field, m.Extracted, m.Reference)
			}
		}
		for _, name := range missing {
			fmt.Printf("no extracted record for %s\n", name)
		}
	}

	overall := 0.0
	if compared > 0 {
		overall = float64(matched) / float64(compared)
	}
	fmt.Fprintf(os.Stderr, "\nQC summary: %d records, %d/%d fields match (%.1f%%), %d missing\n",
		len(reports), matched, compared, 100*overall, len(missing))

	if minAcc, _ := cmd.Flags().GetFloat64("min-accuracy"); minAcc > 0 && overall < minAcc {
		return fmt.Errorf("accuracy %.3f is below %.3f", overall, minAcc)
	}
	return nil
}

// qcPair is one reference record and its extracted counterpart, if any.
type qcPair struct {
	extracted string
	reference string
}

// qcPairs pairs record files by name when both paths are directories.
func qcPairs(extracted, reference string) ([]qcPair, error) {
	info, err := os.Stat(reference)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []qcPair{{extracted: extracted, reference: reference}}, nil
	}

	entries, err := os.ReadDir(reference)
	if err != nil {
		return nil, err
	}
	var pairs []qcPair
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := export.FormatOf(e.Name()); err != nil {
			continue
		}
		p := qcPair{reference: filepath.Join(reference, e.Name())}
		if got := filepath.Join(extracted, e.Name()); fileExists(got) {
			p.extracted = got
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].reference < pairs[j].reference })
	return pairs, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
