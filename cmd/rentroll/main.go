/*
main.go - rentroll CLI entry point

PURPOSE:
  Operator surface for the rent-roll engine. Every mutation the spec
  allows is an explicit subcommand here, never a side effect:

    rentroll serve            Start the HTTP API server
    rentroll load             Load amendment + charge CSVs into the store
    rentroll reconcile        Run a reconcile, print the summary
    rentroll export           Run a reconcile, write the CSV exports
    rentroll purge-orphans    Remove orphaned charges (backed up first)
    rentroll remediate-dates  Clear one invalid end date (backed up first)

CONFIGURATION:
  Flags, with environment fallbacks loaded from .env (godotenv):
    RENTROLL_DB      SQLite database path    (--db)
    RENTROLL_ADDR    HTTP listen address     (--addr, serve only)
    RENTROLL_RULES   Rule-set JSON file path (--rules)

EXAMPLES:
  rentroll load --db ./rentroll.db --amendments a.csv --charges c.csv
  rentroll reconcile --db ./rentroll.db --as-of 2025-06-30
  rentroll purge-orphans --db ./rentroll.db
  rentroll serve --db ./rentroll.db --addr :8080

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite: Persistence, backups, run history
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/warp/rentroll-engine/api"
	"github.com/warp/rentroll-engine/factory"
	"github.com/warp/rentroll-engine/ingest"
	"github.com/warp/rentroll-engine/lease"
	"github.com/warp/rentroll-engine/reconcile"
	"github.com/warp/rentroll-engine/store/sqlite"
)

var (
	dbPath    string
	rulesPath string
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "rentroll",
		Short: "Rent-roll resolution and reconciliation engine",
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envOr("RENTROLL_DB", "rentroll.db"),
		"SQLite database path (use :memory: for in-memory)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", os.Getenv("RENTROLL_RULES"),
		"rule-set JSON file (defaults apply when omitted)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(purgeOrphansCmd())
	rootCmd.AddCommand(remediateDatesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openStore() (*sqlite.Store, lease.RuleSet, error) {
	rules, err := factory.LoadRuleSetFile(rulesPath)
	if err != nil {
		return nil, lease.RuleSet{}, err
	}
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, lease.RuleSet{}, err
	}
	return store, rules, nil
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	addr := envOr("RENTROLL_ADDR", ":8080")

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, rules, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			handler := api.NewHandler(store, rules)
			server := &http.Server{
				Addr:         addr,
				Handler:      api.NewRouter(handler),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				log.Printf("rent-roll API listening on %s", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("server failed: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Println("shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", addr, "listen address")
	return cmd
}

// =============================================================================
// LOAD
// =============================================================================

func loadCmd() *cobra.Command {
	var amendmentsPath, chargesPath string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load amendment and charge CSVs into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			af, err := os.Open(amendmentsPath)
			if err != nil {
				return err
			}
			defer af.Close()
			cf, err := os.Open(chargesPath)
			if err != nil {
				return err
			}
			defer cf.Close()

			source := ingest.NewCSVSource(af, cf)
			amendments, skippedA, err := source.ReadAmendments()
			if err != nil {
				return fmt.Errorf("read amendments: %w", err)
			}
			charges, skippedC, err := source.ReadCharges()
			if err != nil {
				return fmt.Errorf("read charges: %w", err)
			}
			for _, s := range skippedA {
				log.Printf("amendments: skipped %v", s)
			}
			for _, s := range skippedC {
				log.Printf("charges: skipped %v", s)
			}

			report, err := store.Load(cmd.Context(), amendments, charges)
			if err != nil {
				return err
			}
			for _, rec := range report.Skipped {
				log.Printf("load: skipped %v", rec)
			}
			fmt.Printf("loaded %d amendments (%d skipped), %d charges (%d skipped)\n",
				report.AmendmentsLoaded, report.AmendmentsSkipped+len(skippedA),
				report.ChargesLoaded, report.ChargesSkipped+len(skippedC))
			return nil
		},
	}
	cmd.Flags().StringVar(&amendmentsPath, "amendments", "", "amendments CSV path")
	cmd.Flags().StringVar(&chargesPath, "charges", "", "charges CSV path")
	cmd.MarkFlagRequired("amendments")
	cmd.MarkFlagRequired("charges")
	return cmd
}

// =============================================================================
// RECONCILE / EXPORT
// =============================================================================

func runReconcile(ctx context.Context, store *sqlite.Store, rules lease.RuleSet, asOfStr string, workers int) (*reconcile.Result, error) {
	asOf := lease.Today()
	if asOfStr != "" {
		parsed, err := lease.ParseDate(asOfStr)
		if err != nil {
			return nil, err
		}
		asOf = parsed
	}

	rec := reconcile.New(store, rules)
	rec.Workers = workers
	result, err := rec.Reconcile(ctx, asOf)
	if err != nil {
		return nil, err
	}

	byKind := make(map[string]int, len(result.Summary.ByKind))
	for k, n := range result.Summary.ByKind {
		byKind[string(k)] = n
	}
	if err := store.SaveRun(ctx, sqlite.RunRecord{
		ID:            result.RunID,
		AsOf:          result.AsOf.String(),
		PairsExamined: result.Summary.PairsExamined,
		RentRollRows:  result.Summary.RentRollRows,
		Findings:      result.Summary.Total(),
		ByKind:        byKind,
	}); err != nil {
		log.Printf("save run %s: %v", result.RunID, err)
	}
	return result, nil
}

func reconcileCmd() *cobra.Command {
	var asOf string
	var workers int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a full reconcile and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, rules, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := runReconcile(cmd.Context(), store, rules, asOf, workers)
			if errors.Is(err, lease.ErrEmptyStore) {
				return fmt.Errorf("nothing to reconcile: %w (run `rentroll load` first)", err)
			}
			if err != nil {
				return err
			}
			return reconcile.WriteSummary(os.Stdout, result)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "report date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&workers, "workers", 0, "resolution worker count (default GOMAXPROCS)")
	return cmd
}

func exportCmd() *cobra.Command {
	var asOf, outDir string
	var workers int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run a reconcile and write the rent-roll and findings CSVs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, rules, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := runReconcile(cmd.Context(), store, rules, asOf, workers)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			rentRollPath := filepath.Join(outDir, "rentroll.csv")
			findingsPath := filepath.Join(outDir, "findings.csv")

			rf, err := os.Create(rentRollPath)
			if err != nil {
				return err
			}
			defer rf.Close()
			if err := reconcile.WriteRentRollCSV(rf, result.RentRoll); err != nil {
				return err
			}

			ff, err := os.Create(findingsPath)
			if err != nil {
				return err
			}
			defer ff.Close()
			if err := reconcile.WriteFindingsCSV(ff, result.Findings); err != nil {
				return err
			}

			fmt.Printf("wrote %s (%d rows) and %s (%d findings)\n",
				rentRollPath, result.Summary.RentRollRows,
				findingsPath, result.Summary.Total())
			return reconcile.WriteSummary(os.Stdout, result)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "report date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.Flags().IntVar(&workers, "workers", 0, "resolution worker count (default GOMAXPROCS)")
	return cmd
}

// =============================================================================
// REMEDIATION - explicit, audited, backed up
// =============================================================================

func purgeOrphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-orphans",
		Short: "Remove charges whose amendment does not exist (pre-imaged to a backup)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			backupRef := uuid.NewString()
			report, err := store.PurgeOrphans(cmd.Context(), backupRef)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d orphaned charges, backup %s\n", len(report.Purged), backupRef)
			for _, id := range report.Purged {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	}
}

func remediateDatesCmd() *cobra.Command {
	var amendmentID, note string

	cmd := &cobra.Command{
		Use:   "remediate-dates",
		Short: "Clear the end date of an amendment that ends before it starts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			backupRef := uuid.NewString()
			err = store.RemediateDateSequence(cmd.Context(), lease.AmendmentID(amendmentID), backupRef, note)
			if err != nil {
				return err
			}
			fmt.Printf("cleared end date on %s, backup %s\n", amendmentID, backupRef)
			return nil
		},
	}
	cmd.Flags().StringVar(&amendmentID, "amendment", "", "amendment ID")
	cmd.Flags().StringVar(&note, "note", "date sequence remediation", "audit note")
	cmd.MarkFlagRequired("amendment")
	return cmd
}
