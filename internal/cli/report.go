package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/database"
)

// ReportCommand prints sync run history from the local database.
type ReportCommand struct {
	DatabasePath string
	RunID        uint
	Limit        int
}

func NewReportCommand() *ReportCommand {
	return &ReportCommand{}
}

func (cmd *ReportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)

	var runID uint64
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the sync history database")
	fs.Uint64Var(&runID, "run", 0, "Show details for a specific run ID")
	fs.IntVar(&cmd.Limit, "limit", 10, "Number of recent runs to list")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s report [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show the history of annotation sync runs.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd.RunID = uint(runID)
	return nil
}

func (cmd *ReportCommand) Run() error {
	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if cmd.RunID != 0 {
		return cmd.printRun(db)
	}
	return cmd.printRecent(db)
}

func (cmd *ReportCommand) printRecent(db *database.Database) error {
	runs, err := db.GetRecentRuns(cmd.Limit)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No sync runs recorded yet.")
		return nil
	}

	totalRuns, totalApplied, totalUnmatched, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	fmt.Printf("%-6s %-10s %-10s %-8s %-10s %-7s %s\n",
		"ID", "TRIGGER", "STATUS", "APPLIED", "UNMATCHED", "FAILED", "STARTED")
	for _, run := range runs {
		fmt.Printf("%-6d %-10s %-10s %-8d %-10d %-7d %s\n",
			run.ID, run.Trigger, run.Status, run.Applied, run.Unmatched, run.Failed,
			run.StartedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Printf("\nTotals: %d runs, %d highlights applied, %d unmatched\n",
		totalRuns, totalApplied, totalUnmatched)
	return nil
}

func (cmd *ReportCommand) printRun(db *database.Database) error {
	run, err := db.GetRun(cmd.RunID)
	if err != nil {
		return fmt.Errorf("run %d not found: %w", cmd.RunID, err)
	}

	fmt.Printf("Run #%d (%s)\n", run.ID, run.Trigger)
	fmt.Printf("Status:    %s\n", run.Status)
	fmt.Printf("Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Applied %d, unmatched %d, failed %d\n", run.Applied, run.Unmatched, run.Failed)
	if run.Errors != "" {
		fmt.Printf("Errors: %s\n", run.Errors)
	}

	applied, err := db.GetAppliedForRun(run.ID)
	if err != nil {
		return fmt.Errorf("failed to load applied highlights: %w", err)
	}
	if len(applied) > 0 {
		fmt.Println("\n=== Applied Highlights ===")
		for _, h := range applied {
			fmt.Printf("  ^%s [%s, %.2f] %s\n", h.BlockID, h.Strategy, h.Confidence, h.DocumentPath)
		}
	}

	unmatched, err := db.GetUnmatchedForRun(run.ID)
	if err != nil {
		return fmt.Errorf("failed to load unmatched records: %w", err)
	}
	if len(unmatched) > 0 {
		fmt.Println("\n=== Unmatched ===")
		for _, u := range unmatched {
			text := u.Text
			if len(text) > 60 {
				text = text[:60] + "..."
			}
			fmt.Printf("  %q (%s): %s\n", text, u.BookTitle, u.Reason)
		}
	}

	return nil
}
