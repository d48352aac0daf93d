package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-fetch/internal/api"
	"go-civitai-fetch/internal/catalog"
	"go-civitai-fetch/internal/database"
	"go-civitai-fetch/internal/downloader"
	"go-civitai-fetch/internal/index"
	"go-civitai-fetch/internal/models"
	"go-civitai-fetch/internal/paths"
	"go-civitai-fetch/internal/resolver"
)

var (
	downloadConcurrencyFlag  int
	downloadRetriesFlag      int
	downloadSkipExistingFlag bool
	downloadVerifyHashesFlag bool
)

var downloadCmd = &cobra.Command{
	Use:   "download [catalog.csv ...]",
	Short: "Download the models listed in resolved catalogs",
	Long: `Reads resolved catalog CSVs and downloads every file whose URL is a
canonical download link. With no arguments, all catalogs in the catalog
directory are processed. Completed downloads are recorded in the local
history database and search index.`,
	RunE: runDownload,
}

// taskMeta carries the identity needed to write a history entry once the
// download outcome for the task is known.
type taskMeta struct {
	ModelName   string
	ModelType   string
	VersionName string
	URL         string
	ModelID     int
	VersionID   int
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogPaths := args
	if len(catalogPaths) == 0 {
		var err error
		catalogPaths, err = catalogsInDir(globalConfig.CatalogDir)
		if err != nil {
			return err
		}
		if len(catalogPaths) == 0 {
			log.Warnf("No catalog CSV files found in %s", globalConfig.CatalogDir)
			return nil
		}
	}

	var rows []catalog.Row
	for _, path := range catalogPaths {
		fileRows, err := catalog.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		rows = append(rows, fileRows...)
	}
	if len(rows) == 0 {
		log.Warn("Catalogs contain no rows, nothing to download")
		return nil
	}

	// Command flags beat the merged config for this invocation only.
	if cmd.Flags().Changed("concurrency") {
		globalConfig.Download.Concurrency = downloadConcurrencyFlag
	}
	if cmd.Flags().Changed("retries") {
		globalConfig.Download.RetryAttempts = downloadRetriesFlag
	}
	if cmd.Flags().Changed("skip-existing") {
		globalConfig.Download.SkipExisting = downloadSkipExistingFlag
	}
	if cmd.Flags().Changed("verify-hashes") {
		globalConfig.Download.VerifyHashes = downloadVerifyHashesFlag
	}

	client := newAPIClient()
	tasks, meta, unresolved := buildTasks(client, rows)
	if unresolved > 0 {
		log.Warnf("%d rows have no canonical download URL, run 'resolve' first", unresolved)
	}
	if len(tasks) == 0 {
		log.Warn("No downloadable rows found")
		return nil
	}

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	idx, err := index.OpenOrCreate(globalConfig.IndexPath)
	if err != nil {
		log.WithError(err).Error("Failed to open search index, history search will be stale")
		idx = nil
	}
	if idx != nil {
		defer idx.Close()
	}

	engine := downloader.NewEngine(nil, globalConfig.APIKey, downloader.Options{
		Concurrency:    globalConfig.Download.Concurrency,
		RetryAttempts:  globalConfig.Download.RetryAttempts,
		SkipExisting:   globalConfig.Download.SkipExisting,
		VerifyHashes:   globalConfig.Download.VerifyHashes,
		Timeout:        time.Duration(globalConfig.Download.TimeoutSec) * time.Second,
		ProgressOutput: os.Stdout,
	})

	outcomes := engine.DownloadAll(ctx, tasks)

	failed := 0
	for _, outcome := range outcomes {
		if !outcome.Success {
			failed++
			log.Error(outcome.Message)
		}
		if m, ok := meta[outcome.TaskID]; ok {
			recordOutcome(db, idx, m, outcome)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(outcomes))
	}
	return nil
}

// catalogsInDir lists catalog CSV paths in dir, excluding the template.
func catalogsInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory %s: %w", dir, err)
	}
	var found []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".csv") || strings.EqualFold(name, templateFileName) {
			continue
		}
		found = append(found, filepath.Join(dir, name))
	}
	return found, nil
}

// buildTasks turns catalog rows into download tasks. Rows whose URL is
// not a canonical download link are counted and skipped. Version and
// model metadata is fetched best-effort to pick the destination folder,
// the server filename and the expected hashes; lookup failures degrade
// to the fallback folder and a slug-derived filename.
func buildTasks(client *api.Client, rows []catalog.Row) ([]downloader.Task, map[string]taskMeta, int) {
	var tasks []downloader.Task
	meta := make(map[string]taskMeta)
	unresolved := 0

	for _, row := range rows {
		ref := resolver.Classify(row.URL)
		if ref.Kind != resolver.KindDownloadEndpoint {
			log.Debugf("Skipping row %s (%s): URL %q is not a download link", row.SrNo, row.Name, row.URL)
			unresolved++
			continue
		}

		m := taskMeta{URL: row.URL, VersionID: ref.VersionID, ModelName: row.Name}
		var file models.File

		if version, err := client.GetModelVersionByID(ref.VersionID); err == nil {
			m.VersionName = version.Name
			m.ModelID = version.ModelId
			file, _ = pickFile(version.Files)
			if model, err := client.GetModelByID(version.ModelId); err == nil {
				m.ModelType = model.Type
				if m.ModelName == "" {
					m.ModelName = model.Name
				}
			}
		} else {
			log.WithError(err).Warnf("Could not fetch version %d metadata, using fallback destination", ref.VersionID)
		}

		displayName := m.ModelName
		if displayName == "" {
			displayName = "model_" + strconv.Itoa(ref.VersionID)
		}

		dest := paths.Destination(globalConfig.SavePath, globalConfig.ModelPaths, m.ModelType, displayName)
		if file.Name != "" {
			dest = filepath.Join(globalConfig.SavePath, paths.DirForType(globalConfig.ModelPaths, m.ModelType), file.Name)
		}

		task := downloader.NewTask(row.URL, dest)
		task.Hashes = file.Hashes
		tasks = append(tasks, task)
		meta[task.ID] = m
	}

	return tasks, meta, unresolved
}

// pickFile applies the file preference order: a primary safetensor wins
// outright, then the first safetensor, the first primary, the first file.
func pickFile(files []models.File) (models.File, bool) {
	var safetensor, primary, any *models.File
	for i := range files {
		f := &files[i]
		isSafetensor := strings.Contains(strings.ToLower(f.Metadata.Format), "safetensor")
		if isSafetensor && f.Primary {
			return *f, true
		}
		if isSafetensor && safetensor == nil {
			safetensor = f
		}
		if f.Primary && primary == nil {
			primary = f
		}
		if any == nil {
			any = f
		}
	}
	switch {
	case safetensor != nil:
		return *safetensor, true
	case primary != nil:
		return *primary, true
	case any != nil:
		return *any, true
	}
	return models.File{}, false
}

// recordOutcome writes the download result to the history database and
// the search index.
func recordOutcome(db *database.DB, idx bleve.Index, m taskMeta, outcome downloader.Outcome) {
	entry := models.HistoryEntry{
		ModelName:   m.ModelName,
		ModelType:   m.ModelType,
		VersionName: m.VersionName,
		URL:         m.URL,
		Timestamp:   time.Now().Unix(),
		ModelID:     m.ModelID,
		VersionID:   m.VersionID,
	}
	switch {
	case outcome.Success && strings.Contains(outcome.Message, downloader.SkipMarker):
		entry.Status = models.StatusSkipped
	case outcome.Success:
		entry.Status = models.StatusDownloaded
	default:
		entry.Status = models.StatusError
		entry.ErrorDetails = outcome.Message
	}
	if outcome.FinalPath != "" {
		entry.Filename = filepath.Base(outcome.FinalPath)
		entry.Folder = filepath.Dir(outcome.FinalPath)
	}

	if err := db.PutEntry(entry); err != nil {
		log.WithError(err).Warnf("Failed to record history for version %d", m.VersionID)
		return
	}
	if err := index.IndexEntry(idx, entry); err != nil {
		log.WithError(err).Warnf("Failed to index history for version %d", m.VersionID)
	}
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().IntVarP(&downloadConcurrencyFlag, "concurrency", "c", 0, "Maximum concurrent downloads (overrides config)")
	downloadCmd.Flags().IntVar(&downloadRetriesFlag, "retries", 0, "Retry attempts per download (overrides config)")
	downloadCmd.Flags().BoolVar(&downloadSkipExistingFlag, "skip-existing", true, "Skip files that already exist on disk")
	downloadCmd.Flags().BoolVar(&downloadVerifyHashesFlag, "verify-hashes", false, "Verify downloaded files against published hashes")
}
