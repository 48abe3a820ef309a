package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/marginalia/internal/audit"
	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/database"
	"github.com/mrlokans/marginalia/internal/syncer"
	"github.com/mrlokans/marginalia/internal/vault"
)

// SyncCommand runs the annotation sync pipeline once and exits.
type SyncCommand struct {
	VaultDir     string
	DatabasePath string
	Title        string
	Verbose      bool
	DryRun       bool
}

func NewSyncCommand() *SyncCommand {
	return &SyncCommand{}
}

func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	fs.StringVar(&cmd.VaultDir, "vault", "", "Path to the vault directory (overrides VAULT_DIR)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the sync history database (overrides DATABASE_PATH)")
	fs.StringVar(&cmd.Title, "title", "", "Only sync annotations for books matching this title")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose output")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Match and report without modifying any files")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Match Kindle and annotator highlights against the book transcriptions\n")
		fmt.Fprintf(os.Stderr, "in the vault, wrap matched spans, and update landing pages.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Sync the whole vault:\n")
		fmt.Fprintf(os.Stderr, "  %s sync -vault ~/Obsidian\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Sync a single book:\n")
		fmt.Fprintf(os.Stderr, "  %s sync -vault ~/Obsidian -title \"Meditations\"\n", os.Args[0])
	}

	return fs.Parse(args)
}

func (cmd *SyncCommand) Run() error {
	cfg := config.NewConfig()
	if cmd.VaultDir != "" {
		cfg.Vault.Dir = cmd.VaultDir
	}
	if cmd.DatabasePath != "" {
		cfg.Database.Path = cmd.DatabasePath
	}

	if cfg.Vault.Dir == "" {
		return fmt.Errorf("vault directory is not set (use -vault or VAULT_DIR)")
	}

	v, err := vault.New(cfg.Vault, cfg.Matching.TitleThreshold)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	auditor := audit.NewAuditor(cfg.Audit.Dir)
	service := syncer.New(cfg, v, db, auditor)
	if cmd.DryRun {
		fmt.Println("DRY RUN MODE - No changes will be made")
		service.SetDryRun(true)
	}

	var report *syncer.Report
	if cmd.Title != "" {
		fmt.Printf("Syncing annotations for %q...\n", cmd.Title)
		report, err = service.SyncBook(context.Background(), "cli", cmd.Title)
	} else {
		fmt.Println("Syncing annotations...")
		report, err = service.Run(context.Background(), "cli")
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println("\n=== Sync Summary ===")
	fmt.Printf("Applied:   %d\n", report.Applied)
	fmt.Printf("Unmatched: %d\n", report.Unmatched)
	fmt.Printf("Failed:    %d\n", report.Failed)
	if report.Skipped > 0 {
		fmt.Printf("Skipped:   %d malformed entries\n", report.Skipped)
	}

	if cmd.Verbose && len(report.Errors) > 0 {
		fmt.Printf("\n%d errors occurred:\n", len(report.Errors))
		for _, errMsg := range report.Errors {
			fmt.Printf("  [ERROR] %s\n", errMsg)
		}
	}

	return nil
}
