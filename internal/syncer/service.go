// Package syncer runs the annotation sync pipeline: gather
// annotations from every source, match them against the vault's book
// transcriptions, mark the matched spans, and refresh the landing
// pages with direct links.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mrlokans/marginalia/internal/audit"
	"github.com/mrlokans/marginalia/internal/blockid"
	"github.com/mrlokans/marginalia/internal/callouts"
	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/database"
	"github.com/mrlokans/marginalia/internal/entities"
	"github.com/mrlokans/marginalia/internal/kindle"
	"github.com/mrlokans/marginalia/internal/landing"
	"github.com/mrlokans/marginalia/internal/matcher"
	"github.com/mrlokans/marginalia/internal/mutator"
	"github.com/mrlokans/marginalia/internal/vault"
)

// Report summarizes one sync run.
type Report struct {
	RunID     uint     `json:"run_id"`
	Trigger   string   `json:"trigger"`
	Applied   int      `json:"applied"`
	Unmatched int      `json:"unmatched"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

type Service struct {
	cfg      *config.Config
	vault    *vault.Vault
	matcher  *matcher.Matcher
	landing  *landing.Updater
	kindle   *kindle.Parser
	callouts *callouts.Parser
	db       *database.Database
	auditor  *audit.Auditor
	dryRun   bool
}

func New(cfg *config.Config, v *vault.Vault, db *database.Database, auditor *audit.Auditor) *Service {
	return &Service{
		cfg:      cfg,
		vault:    v,
		matcher:  matcher.New(cfg.Matching),
		landing:  landing.NewUpdater(cfg.Landing),
		kindle:   kindle.NewParser(),
		callouts: callouts.NewParser(),
		db:       db,
		auditor:  auditor,
	}
}

// SetDryRun makes the service match and report without writing: no
// document mutation, no landing updates, no history rows.
func (s *Service) SetDryRun(dry bool) {
	s.dryRun = dry
}

// Run executes a full sync over every book with annotations.
func (s *Service) Run(ctx context.Context, trigger string) (*Report, error) {
	run, err := s.startRun(trigger)
	if err != nil {
		return nil, fmt.Errorf("syncer: start run: %w", err)
	}

	report := &Report{RunID: run.ID, Trigger: trigger}
	annotations, skipped := s.collect()
	report.Skipped = skipped

	books := groupByBook(annotations, s.cfg.Landing.WorkKey)
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}
		s.syncBook(run.ID, book, report)
	}

	run.Applied = report.Applied
	run.Unmatched = report.Unmatched
	run.Failed = report.Failed
	run.Status = entities.RunStatusCompleted
	if len(report.Errors) > 0 {
		run.Status = entities.RunStatusFailed
		if data, err := json.Marshal(report.Errors); err == nil {
			run.Errors = string(data)
		}
	}
	if err := s.completeRun(run); err != nil {
		return report, fmt.Errorf("syncer: complete run: %w", err)
	}

	if s.auditor != nil && !s.dryRun {
		if _, err := s.auditor.SaveJSON(report); err != nil {
			log.Printf("Failed to save audit report: %v", err)
		}
		retention := time.Duration(s.cfg.Audit.RetentionDays) * 24 * time.Hour
		if retention > 0 {
			if _, err := s.auditor.Cleanup(retention); err != nil {
				log.Printf("Failed to clean up audit files: %v", err)
			}
		}
	}

	log.Printf("Sync run %d finished: applied=%d unmatched=%d failed=%d skipped=%d",
		run.ID, report.Applied, report.Unmatched, report.Failed, report.Skipped)
	return report, nil
}

// SyncBook runs the pipeline for a single book title.
func (s *Service) SyncBook(ctx context.Context, trigger, title string) (*Report, error) {
	run, err := s.startRun(trigger)
	if err != nil {
		return nil, fmt.Errorf("syncer: start run: %w", err)
	}

	report := &Report{RunID: run.ID, Trigger: trigger}
	annotations, skipped := s.collect()
	report.Skipped = skipped

	wantKey := strings.ToLower(strings.TrimSpace(title))
	for _, book := range groupByBook(annotations, s.cfg.Landing.WorkKey) {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}
		if !strings.Contains(strings.ToLower(book.title), wantKey) {
			continue
		}
		s.syncBook(run.ID, book, report)
	}

	run.Applied = report.Applied
	run.Unmatched = report.Unmatched
	run.Failed = report.Failed
	run.Status = entities.RunStatusCompleted
	if err := s.completeRun(run); err != nil {
		return report, fmt.Errorf("syncer: complete run: %w", err)
	}
	return report, nil
}

func (s *Service) startRun(trigger string) (*entities.SyncRun, error) {
	if s.dryRun {
		return &entities.SyncRun{Trigger: trigger, Status: entities.RunStatusRunning, StartedAt: time.Now()}, nil
	}
	return s.db.StartRun(trigger)
}

func (s *Service) completeRun(run *entities.SyncRun) error {
	if s.dryRun {
		return nil
	}
	return s.db.CompleteRun(run)
}

// collect parses every annotation source: Kindle clippings files and
// callout blocks on the landing pages. Duplicates (the same quote
// captured in both places) collapse to one annotation.
func (s *Service) collect() ([]entities.Annotation, int) {
	var annotations []entities.Annotation
	skipped := 0

	clippings, err := s.vault.ClippingsFiles()
	if err != nil {
		log.Printf("Failed to list clippings files: %v", err)
	}
	for _, rel := range clippings {
		data, err := s.vault.Read(rel)
		if err != nil {
			log.Printf("Failed to read clippings file %s: %v", rel, err)
			continue
		}
		res, err := s.kindle.Parse(strings.NewReader(string(data)))
		if err != nil {
			log.Printf("Failed to parse clippings file %s: %v", rel, err)
			continue
		}
		annotations = append(annotations, res.Annotations...)
		skipped += res.Skipped
	}

	pages, err := s.vault.LandingFiles()
	if err != nil {
		log.Printf("Failed to list landing pages: %v", err)
	}
	for _, rel := range pages {
		data, err := s.vault.Read(rel)
		if err != nil {
			log.Printf("Failed to read landing page %s: %v", rel, err)
			continue
		}
		res := s.callouts.ParseFile(rel, string(data))
		annotations = append(annotations, res.Annotations...)
		skipped += res.Skipped
	}

	return dedupe(annotations), skipped
}

// bookGroup is all annotations of one work.
type bookGroup struct {
	title       string
	author      string
	annotations []entities.Annotation
}

// groupByBook buckets annotations into works. The default key is
// title plus author; workKey "title" merges same-titled books, which
// helps when sources disagree on author spelling.
func groupByBook(annotations []entities.Annotation, workKey string) []bookGroup {
	byKey := make(map[string]*bookGroup)
	var order []string
	for _, a := range annotations {
		key := a.BookKey()
		if workKey == "title" {
			key = strings.ToLower(strings.TrimSpace(a.BookTitle))
		}
		g, ok := byKey[key]
		if !ok {
			g = &bookGroup{title: a.BookTitle, author: a.Author}
			byKey[key] = g
			order = append(order, key)
		}
		g.annotations = append(g.annotations, a)
	}
	sort.Strings(order)

	out := make([]bookGroup, 0, len(byKey))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

func dedupe(annotations []entities.Annotation) []entities.Annotation {
	seen := make(map[string]bool, len(annotations))
	var out []entities.Annotation
	for _, a := range annotations {
		key := a.BookKey() + "|" + strings.ToLower(strings.Join(strings.Fields(a.Text), " "))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// syncBook matches one book's annotations against each transcription
// edition, mutates the documents, and refreshes the landing page. A
// failing document aborts only that document; the rest of the book
// still syncs.
func (s *Service) syncBook(runID uint, book bookGroup, report *Report) {
	docs, err := s.vault.ResolveDocuments(book.title)
	if errors.Is(err, vault.ErrNotFound) {
		for _, a := range book.annotations {
			if a.Kind != entities.KindHighlight {
				continue
			}
			s.recordUnmatched(runID, a, "no transcription found", report)
		}
		return
	}
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", book.title, err))
		return
	}

	matchedAnywhere := make(map[int]bool)
	var entries []entities.LandingEntry

	for _, docPath := range docs {
		docEntries, err := s.syncDocument(runID, docPath, book, matchedAnywhere, report)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", docPath, err))
			continue
		}
		entries = append(entries, docEntries...)
	}

	for i, a := range book.annotations {
		if a.Kind != entities.KindHighlight || matchedAnywhere[i] {
			continue
		}
		s.recordUnmatched(runID, a, "no match above threshold", report)
	}

	if len(entries) > 0 {
		s.updateLanding(book, entries, report)
	}
}

// syncDocument matches the book's annotations against one
// transcription and applies the resulting mutations atomically.
func (s *Service) syncDocument(runID uint, docPath string, book bookGroup, matchedAnywhere map[int]bool, report *Report) ([]entities.LandingEntry, error) {
	data, err := s.vault.Read(docPath)
	if err != nil {
		return nil, err
	}
	content := string(data)

	doc := s.matcher.Prepare(content)
	ids := blockid.ScanDocument(content)
	edition := vault.Edition(docPath)

	var ops []mutator.Op
	var entries []entities.LandingEntry
	var newlyApplied []entities.AppliedHighlight

	for i, a := range book.annotations {
		if a.Kind != entities.KindHighlight {
			continue
		}
		res := s.matcher.MatchIn(doc, a.Text)
		if !res.Matched() {
			continue
		}
		matchedAnywhere[i] = true

		id, reused := ids.Lookup(res.Span)
		if !reused {
			id = ids.Allocate(res.MatchedText)
			// The block ID tags the whole line, so later matches on
			// the same line must resolve to this ID, not a fresh one.
			ids.Register(id, lineSpan(content, res.Span))
			newlyApplied = append(newlyApplied, entities.AppliedHighlight{
				RunID:        runID,
				DocumentPath: docPath,
				BlockID:      id,
				BookTitle:    a.BookTitle,
				Author:       a.Author,
				Source:       a.Source,
				Strategy:     string(res.Strategy),
				Confidence:   res.Confidence,
				SpanStart:    res.Span.Start,
				SpanEnd:      res.Span.End,
				MatchedText:  res.MatchedText,
			})
		}

		ops = append(ops, mutator.Op{Span: res.Span, BlockID: id, Comment: a.Comment})
		entries = append(entries, entities.LandingEntry{
			Annotation: a,
			Block:      entities.BlockReference{ID: id, DocumentPath: docPath, Span: res.Span},
			Preview:    s.landing.Preview(res.MatchedText),
			Comment:    a.Comment,
			Edition:    edition,
		})
	}

	mutated, changed := mutator.Apply(content, ops)
	if changed && !s.dryRun {
		if err := s.vault.WriteAtomic(docPath, []byte(mutated)); err != nil {
			return nil, err
		}
	}

	if !s.dryRun {
		for _, ah := range newlyApplied {
			if err := s.db.SaveAppliedHighlight(&ah); err != nil {
				log.Printf("Failed to record applied highlight: %v", err)
			}
		}
	}
	report.Applied += len(newlyApplied)

	return entries, nil
}

// lineSpan widens a span to the full lines containing it.
func lineSpan(content string, sp entities.Span) entities.Span {
	start := strings.LastIndexByte(content[:sp.Start], '\n') + 1
	end := len(content)
	if i := strings.IndexByte(content[sp.End:], '\n'); i >= 0 {
		end = sp.End + i
	}
	return entities.Span{Start: start, End: end}
}

func (s *Service) updateLanding(book bookGroup, entries []entities.LandingEntry, report *Report) {
	pagePath, err := s.vault.ResolveLanding(book.title)
	if errors.Is(err, vault.ErrNotFound) {
		log.Printf("No landing page for %q, skipping link update", book.title)
		return
	}
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("landing %s: %v", book.title, err))
		return
	}

	data, err := s.vault.Read(pagePath)
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("landing %s: %v", pagePath, err))
		return
	}

	updated, changed := s.landing.Update(string(data), entries)
	if !changed || s.dryRun {
		return
	}
	if err := s.vault.WriteAtomic(pagePath, []byte(updated)); err != nil {
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("landing %s: %v", pagePath, err))
	}
}

func (s *Service) recordUnmatched(runID uint, a entities.Annotation, reason string, report *Report) {
	report.Unmatched++
	if s.dryRun {
		return
	}
	err := s.db.SaveUnmatched(&entities.UnmatchedRecord{
		RunID:     runID,
		BookTitle: a.BookTitle,
		Author:    a.Author,
		Source:    a.Source,
		Text:      a.Text,
		Reason:    reason,
	})
	if err != nil {
		log.Printf("Failed to record unmatched annotation: %v", err)
	}
}
