// Command provkb operates the provenance-first knowledge base: validation,
// change detection, index builds, schema migrations and publishing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opengovbd/provkb/pkg/audit"
	"github.com/opengovbd/provkb/pkg/change"
	"github.com/opengovbd/provkb/pkg/config"
	"github.com/opengovbd/provkb/pkg/index"
	"github.com/opengovbd/provkb/pkg/migrate"
	"github.com/opengovbd/provkb/pkg/model"
	"github.com/opengovbd/provkb/pkg/publish"
	"github.com/opengovbd/provkb/pkg/store"
	"github.com/opengovbd/provkb/pkg/validate"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidate(args[2:], stdout, stderr)
	case "detect-change":
		return runDetectChange(args[2:], stdout, stderr)
	case "build-indexes":
		return runBuildIndexes(args[2:], stdout, stderr)
	case "migrate-v1-v2":
		return runMigrateV1V2(args[2:], stdout, stderr)
	case "migrate-v2-v3":
		return runMigrateV2V3(args[2:], stdout, stderr)
	case "publish":
		return runPublish(args[2:], stdout, stderr)
	case "doctor":
		return runDoctor(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "provkb - provenance-first knowledge base toolkit")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  provkb <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  validate <kb-path> [--json]                      Check every document invariant")
	fmt.Fprintln(w, "  detect-change <kb-path> <source-page-id> [file]  Compare new content against the stored hash")
	fmt.Fprintln(w, "  build-indexes <kb-path> <out-dir> [flags]        Rebuild the reverse indexes")
	fmt.Fprintln(w, "  migrate-v1-v2 <in> <out>                         Extract provenance from a legacy document")
	fmt.Fprintln(w, "  migrate-v2-v3 <in> <out>                         Synthesize the guide layer")
	fmt.Fprintln(w, "  publish <kb-path> <out-dir>                      Emit the public guide bundle")
	fmt.Fprintln(w, "  doctor                                           Check the working tree health")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "ENVIRONMENT:")
	fmt.Fprintln(w, "  PROVKB_KB_PATH, PROVKB_INDEX_DIR, PROVKB_PUBLISHED_DIR, PROVKB_SNAPSHOT_DIR,")
	fmt.Fprintln(w, "  PROVKB_AUDIT_DB, PROVKB_ACTOR, LOG_LEVEL, SOURCE_TIMESTAMP,")
	fmt.Fprintln(w, "  PROVKB_PROFILE (YAML deployment profile overlaying the above)")
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig resolves the run configuration. PROVKB_PROFILE names a YAML
// deployment profile that overlays the environment variables.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("PROVKB_PROFILE"); path != "" {
		return config.LoadProfile(path)
	}
	return config.Load(), nil
}

func runTimestamp(cfg *config.Config) string {
	if cfg.SourceTimestamp != "" {
		return cfg.SourceTimestamp
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runValidate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	asJSON := cmd.Bool("json", false, "emit the report as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: provkb validate <kb-path> [--json]")
		return 2
	}

	kb, raw, err := store.LoadKB(cmd.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	v, err := validate.New()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	res := v.Validate(kb, raw)

	if *asJSON {
		if err := writeJSON(stdout, res); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	} else {
		printValidation(stdout, res)
	}
	if !res.OK {
		return 1
	}
	return 0
}

func printValidation(w io.Writer, res *validate.Result) {
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "ERRORS (%d):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "WARNINGS (%d):\n", len(res.Warnings))
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	status := "OK"
	if !res.OK {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%s: %d agencies, %d source pages, %d claims, %d services, %d documents\n",
		status, res.Summary.Agencies, res.Summary.SourcePages, res.Summary.Claims,
		res.Summary.Services, res.Summary.Documents)
}

func runDetectChange(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("detect-change", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	asJSON := cmd.Bool("json", false, "emit the result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() < 2 || cmd.NArg() > 3 {
		fmt.Fprintln(stderr, "usage: provkb detect-change <kb-path> <source-page-id> [content-file] [--json]")
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger := newLogger(stderr, cfg.LogLevel)
	kbPath, pageID := cmd.Arg(0), cmd.Arg(1)

	kb, _, err := store.LoadKB(kbPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	// Without new content there is nothing to compare; report the stored
	// state of the page.
	if cmd.NArg() == 2 {
		sp := kb.SourcePageByID(pageID)
		if sp == nil {
			fmt.Fprintf(stderr, "source page %s not found\n", pageID)
			return 1
		}
		fmt.Fprintf(stdout, "%s\n  content_hash: %s\n  last_crawled_at: %s\n  change_log entries: %d\n",
			sp.SourcePageID, sp.ContentHash, sp.LastCrawledAt, len(sp.ChangeLog))
		return 0
	}

	content, err := os.ReadFile(cmd.Arg(2))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var srcIndex index.Index
	if idx, found, err := store.LoadIndexes(cfg.IndexDir); err != nil {
		logger.Warn("index baseline unreadable, falling back to scan", "error", err)
	} else if found {
		srcIndex = idx.ClaimsBySourcePage
	}

	timestamp := runTimestamp(cfg)
	res, err := change.ProcessSourceChange(kb, pageID, string(content), timestamp, cfg.Actor, srcIndex)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if res.Changed {
		if err := store.SaveKB(kbPath, kb, timestamp, cfg.Actor); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		if err := refreshIndexes(cfg.IndexDir, kb, pageID); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		archiveSnapshot(logger, cfg.SnapshotDir, pageID, timestamp, content)
		mirrorAuditLog(logger, cfg.AuditMirrorPath, kb)
	}

	if *asJSON {
		if err := writeJSON(stdout, res); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	if !res.Changed {
		fmt.Fprintf(stdout, "%s unchanged (hash %s)\n", pageID, res.CurrentHash)
		return 0
	}
	fmt.Fprintf(stdout, "%s changed: %s -> %s\n", pageID, res.PreviousHash, res.CurrentHash)
	if res.Invalidation != nil {
		fmt.Fprintf(stdout, "  invalidated claims: %d\n", len(res.Invalidation.InvalidatedClaims))
		for _, id := range res.Invalidation.InvalidatedClaims {
			fmt.Fprintf(stdout, "    - %s\n", id)
		}
	}
	return 0
}

// refreshIndexes updates the on-disk indexes after a source change,
// incrementally when a baseline exists.
func refreshIndexes(dir string, kb *model.KB, pageID string) error {
	existing, found, err := store.LoadIndexes(dir)
	if err != nil {
		return err
	}
	var rebuilt *index.Indexes
	if found {
		rebuilt = index.BuildIncremental(kb, &existing, index.Diff{ChangedSourcePageIDs: []string{pageID}})
	} else {
		rebuilt = index.Build(kb)
	}
	return store.SaveIndexes(dir, *rebuilt)
}

func archiveSnapshot(logger *slog.Logger, dir, pageID, timestamp string, content []byte) {
	date := timestamp
	if len(date) >= 10 {
		date = date[:10]
	}
	if _, err := store.WriteSnapshot(dir, pageID, date, content); err != nil {
		// A same-day rewrite is expected; everything else is worth a warning.
		if errors.Is(err, store.ErrSnapshotExists) {
			logger.Debug("snapshot already archived", "page", pageID, "date", date)
		} else {
			logger.Warn("snapshot write failed", "page", pageID, "error", err)
		}
	}
}

func mirrorAuditLog(logger *slog.Logger, path string, kb *model.KB) {
	if path == "" {
		return
	}
	mirror, err := audit.OpenMirror(path)
	if err != nil {
		logger.Warn("audit mirror unavailable", "error", err)
		return
	}
	defer func() { _ = mirror.Close() }()
	if err := mirror.Sync(context.Background(), kb.AuditLog); err != nil {
		logger.Warn("audit mirror sync failed", "error", err)
	}
}

func runBuildIndexes(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("build-indexes", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	claimIDs := cmd.String("claim-ids", "", "comma-separated claim IDs that changed")
	sourceIDs := cmd.String("source-page-ids", "", "comma-separated source page IDs that changed")
	diffFile := cmd.String("diff-file", "", "JSON file with changed_claim_ids / changed_source_page_ids")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 2 {
		fmt.Fprintln(stderr, "usage: provkb build-indexes <kb-path> <out-dir> [--claim-ids=...] [--source-page-ids=...] [--diff-file=...]")
		return 2
	}
	kbPath, outDir := cmd.Arg(0), cmd.Arg(1)

	kb, _, err := store.LoadKB(kbPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var diff index.Diff
	if *diffFile != "" {
		data, err := os.ReadFile(*diffFile)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		if err := json.Unmarshal(data, &diff); err != nil {
			fmt.Fprintf(stderr, "diff file %s: %v\n", *diffFile, err)
			return 1
		}
	}
	diff.ChangedClaimIDs = append(diff.ChangedClaimIDs, splitList(*claimIDs)...)
	diff.ChangedSourcePageIDs = append(diff.ChangedSourcePageIDs, splitList(*sourceIDs)...)

	var idx *index.Indexes
	mode := "full"
	if !diff.Empty() {
		if existing, found, err := store.LoadIndexes(outDir); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		} else if found {
			idx = index.BuildIncremental(kb, &existing, diff)
			mode = "incremental"
		}
	}
	if idx == nil {
		idx = index.Build(kb)
	}

	if err := store.SaveIndexes(outDir, *idx); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s rebuild: %d services, %d documents, %d source pages\n",
		mode, len(idx.ClaimsByService), len(idx.ClaimsByDocument), len(idx.ClaimsBySourcePage))
	return 0
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runMigrateV1V2(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: provkb migrate-v1-v2 <in> <out>")
		return 2
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	kb, report, err := migrate.V1ToV2(raw, runTimestamp(cfg), cfg.Actor)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := saveDocument(args[1], kb); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printMigration(stdout, report)
	return 0
}

func runMigrateV2V3(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: provkb migrate-v2-v3 <in> <out>")
		return 2
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	kb, _, err := store.LoadKB(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	report, err := migrate.V2ToV3(kb, runTimestamp(cfg), cfg.Actor)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := saveDocument(args[1], kb); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printMigration(stdout, report)
	return 0
}

// saveDocument writes a migrated document without touching its version
// metadata; the migrators stamp that themselves.
func saveDocument(path string, kb *model.KB) error {
	data, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return store.WriteFileAtomic(path, append(data, '\n'))
}

func printMigration(w io.Writer, report *migrate.Report) {
	fmt.Fprintf(w, "migrated %s -> %s\n", report.FromVersion, report.ToVersion)
	fmt.Fprintf(w, "  source pages: %d, claims: %d, agencies: %d, guides: %d\n",
		report.SourcePages, report.Claims, report.Agencies, report.Guides)
	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "WARNINGS (%d):\n", len(report.Warnings))
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

func runPublish(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: provkb publish <kb-path> <out-dir>")
		return 2
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	kb, raw, err := store.LoadKB(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	// Errors always block publishing.
	v, err := validate.New()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if res := v.Validate(kb, raw); !res.OK {
		printValidation(stderr, res)
		return 1
	}

	bundle, diag, err := publish.New().Publish(kb, publish.Options{SourceTimestamp: cfg.SourceTimestamp})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(diag.Errors) > 0 {
		for _, e := range diag.Errors {
			fmt.Fprintf(stderr, "  - %s\n", e)
		}
		return 1
	}

	outDir := args[1]
	guides, err := json.MarshalIndent(bundle.Guides, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := store.WriteFileAtomic(filepath.Join(outDir, "public_guides.json"), append(guides, '\n')); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	idx, err := json.MarshalIndent(bundle.Index, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := store.WriteFileAtomic(filepath.Join(outDir, "public_guides_index.json"), append(idx, '\n')); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fmt.Fprintf(stdout, "published %d guide(s) at %s\n", len(bundle.Guides.Guides), bundle.Guides.GeneratedAt)
	for _, warning := range diag.Warnings {
		fmt.Fprintf(stdout, "  warning: %s\n", warning)
	}
	return 0
}

// Audit logs beyond this size suggest the mirror should become the primary
// query path.
const auditLogWarnThreshold = 10000

func runDoctor(stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	healthy := true

	check := func(ok bool, label, detail string) {
		status := "ok"
		if !ok {
			status = "FAIL"
			healthy = false
		}
		if detail != "" {
			fmt.Fprintf(stdout, "  [%s] %s: %s\n", status, label, detail)
		} else {
			fmt.Fprintf(stdout, "  [%s] %s\n", status, label)
		}
	}

	fmt.Fprintln(stdout, "provkb doctor")
	kb, raw, err := store.LoadKB(cfg.KBPath)
	if err != nil {
		check(false, "document", err.Error())
		return 1
	}
	check(true, "document", fmt.Sprintf("%s (schema %s, data_version %d)", cfg.KBPath, kb.SchemaVersion, kb.DataVersion))

	if v, err := validate.New(); err != nil {
		check(false, "validator", err.Error())
	} else {
		res := v.Validate(kb, raw)
		check(res.OK, "validation", fmt.Sprintf("%d error(s), %d warning(s)", len(res.Errors), len(res.Warnings)))
	}

	if _, found, err := store.LoadIndexes(cfg.IndexDir); err != nil {
		check(false, "indexes", err.Error())
	} else if !found {
		fmt.Fprintf(stdout, "  [warn] indexes: no baseline in %s, invalidation will scan\n", cfg.IndexDir)
	} else {
		check(true, "indexes", cfg.IndexDir)
	}

	if len(kb.AuditLog) > auditLogWarnThreshold {
		fmt.Fprintf(stdout, "  [warn] audit log: %d events in the document, consider the sqlite mirror\n", len(kb.AuditLog))
	}
	if cfg.AuditMirrorPath != "" {
		mirror, err := audit.OpenMirror(cfg.AuditMirrorPath)
		if err != nil {
			check(false, "audit mirror", err.Error())
		} else {
			n, err := mirror.Count(context.Background())
			_ = mirror.Close()
			if err != nil {
				check(false, "audit mirror", err.Error())
			} else {
				check(true, "audit mirror", fmt.Sprintf("%s (%d events)", cfg.AuditMirrorPath, n))
			}
		}
	}

	if !healthy {
		return 1
	}
	return 0
}
