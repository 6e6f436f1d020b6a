// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/export"
	"github.com/pdiddy/trial-extractor/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the SQLite record store (ingest, list, show, export)",
	Long: `Store keeps one record per trial in a local SQLite database, keyed by NCT
number, together with the history of every extraction run. Use subcommands
to load record files, inspect trials, or export the whole store.`,
}

// --- ingest subcommand ---

var storeIngestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Load record files into the store",
	Long: `Ingest reads every .json and .yaml record in dir (default: the extraction
output directory) and upserts it into the store. Files unchanged since the
last ingest are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStoreIngest,
}

func runStoreIngest(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	dir := cfg.Extraction.OutputDir
	if len(args) > 0 {
		dir = args[0]
	}

	s, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	summary, err := s.Ingest(cmd.Context(), dir, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record file(s) failed ingest", summary.Failed)
	}
	return nil
}

// --- list subcommand ---

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored trials",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

func runStoreList(cmd *cobra.Command, args []string) error {
	s, err := store.Open(loadConfig().Store)
	if err != nil {
		return err
	}
	defer s.Close()

	list, err := s.List(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Println("No trials stored.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-11s  %-20s  %-30s  %-10s  %-4s  %s\n",
		"NCT", "Trial", "Cancer type", "Phase", "Arms", "Status")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, t := range list {
		fmt.Fprintf(os.Stdout, "%-11s  %-20s  %-30s  %-10s  %-4d  %s\n",
			t.NCTNumber, truncate(t.TrialName, 20), truncate(t.CancerType, 30), truncate(t.Phase, 10), t.Arms, t.Status)
	}
	fmt.Fprintf(os.Stdout, "\n%d trials\n", len(list))
	return nil
}

// --- show subcommand ---

var storeShowCmd = &cobra.Command{
	Use:   "show <nct>",
	Short: "Print one stored record and its run history",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreShow,
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	s, err := store.Open(loadConfig().Store)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	data, err := export.Marshal(rec, format)
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return err
	}

	runs, err := s.Runs(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\n%d run(s):\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(os.Stderr, "  %s  %s  %-8s  %d calls  $%.4f  %s\n",
			r.ExtractionDate.Format("2006-01-02 15:04"), r.RunID, r.Model, r.TotalLLMCalls, r.TotalCost, r.Status)
	}
	return nil
}

// --- export subcommand ---

var storeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the store to YAML, JSON or CSV",
	Long: `Export writes every stored record to one file. YAML and JSON hold the full
records; CSV holds one row per arm with one column per catalog field.`,
	Args: cobra.NoArgs,
	RunE: runStoreExport,
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = "output/trials." + format
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	s, err := store.Open(loadConfig().Store)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	switch format {
	case "yaml":
		err = s.ExportYAML(ctx, out)
	case "json":
		err = s.ExportJSON(ctx, out)
	case "csv":
		var f *os.File
		f, err = os.Create(out)
		if err != nil {
			return err
		}
		err = s.ExportCSV(ctx, f, catalog.Default())
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	default:
		return fmt.Errorf("unsupported format %q: use yaml, json or csv", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", out)
	return nil
}

// --- delete and clear subcommands ---

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <nct>...",
	Short: "Remove trials from the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(loadConfig().Store)
		if err != nil {
			return err
		}
		defer s.Close()
		for _, nct := range args {
			if err := s.Delete(cmd.Context(), nct); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", nct)
		}
		return nil
	},
}

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every trial and run from the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("clear removes every stored trial; pass --yes to confirm")
		}
		s, err := store.Open(loadConfig().Store)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", s.Path())
		return nil
	},
}

// truncate shortens s to n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	storeListCmd.Flags().Bool("json", false, "output the list as JSON")
	storeShowCmd.Flags().String("format", export.FormatYAML, "record format: yaml or json")
	storeExportCmd.Flags().String("format", "yaml", "export format: yaml, json or csv")
	storeExportCmd.Flags().String("out", "", "export file (default output/trials.<format>)")
	storeClearCmd.Flags().Bool("yes", false, "confirm removing every trial")

	storeCmd.AddCommand(storeIngestCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeExportCmd)
	storeCmd.AddCommand(storeDeleteCmd)
	storeCmd.AddCommand(storeClearCmd)

	rootCmd.AddCommand(storeCmd)
}
