package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pharmascan/internal/config"
	"pharmascan/internal/models"
	"pharmascan/internal/repository/sqlite"
	"pharmascan/internal/services/export"
)

func main() {
	cfg := config.Load()
	var dbPath string

	cmd := &cobra.Command{
		Use:           "migrate EXPORT.json...",
		Short:         "Import JSON session exports into the detections database",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, dbPath, args)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", cfg.DatabasePath, "Database path")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func migrate(cmd *cobra.Command, dbPath string, files []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migrating %d export(s) to database %s\n", len(files), dbPath)

	db, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := sqlite.NewDetectionRepository(db)

	total, skipped := 0, 0
	for _, file := range files {
		records, err := export.ImportJSON(file)
		if err != nil {
			fmt.Fprintf(out, "⚠️  Skipping %s: %v\n", file, err)
			skipped++
			continue
		}
		fillIdentity(records)

		inserted, err := repo.InsertBatch(records)
		if err != nil {
			return fmt.Errorf("failed to insert records from %s: %w", file, err)
		}
		fmt.Fprintf(out, "   %s: %d records, %d new\n", file, len(records), inserted)
		total += inserted
	}

	fmt.Fprintf(out, "✅ Successfully migrated %d records\n", total)
	if skipped > 0 {
		fmt.Fprintf(out, "⚠️  Skipped %d files (invalid format or errors)\n", skipped)
	}

	sessions, err := repo.GetSessions()
	if err == nil {
		sort.Strings(sessions)
		fmt.Fprintf(out, "\n📊 Database Statistics:\n")
		fmt.Fprintf(out, "   Sessions: %d\n", len(sessions))
		for _, s := range sessions {
			fmt.Fprintf(out, "      - %s\n", s)
		}
	}
	return nil
}

// fillIdentity gives IDs to records from exports that did not carry them,
// and groups records without a session under one import session.
func fillIdentity(records []models.DetectionRecord) {
	session := "import-" + uuid.NewString()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].SessionID == "" {
			records[i].SessionID = session
		}
	}
}
