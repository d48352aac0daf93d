package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-fetch/internal/catalog"
	"go-civitai-fetch/internal/resolver"
)

var (
	resolveFileFlag string
	resolveListFlag string
	resolveTypeFlag string
)

// templateFileName is skipped during directory processing so a starter
// catalog can live alongside real ones.
const templateFileName = "template.csv"

var resolveCmd = &cobra.Command{
	Use:   "resolve [reference]",
	Short: "Resolve model references in catalogs to canonical download URLs",
	Long: `Resolves model references to canonical Civitai download URLs.

With no arguments, every file in the catalog directory is processed:
CSV catalogs have rows whose URL column is empty or not yet canonical
resolved and are rewritten in place, and plain text reference lists
(.txt, one reference per line) are converted into new catalogs. With
--file a single catalog is processed. With --list a single text file is
converted. With a single argument, that one reference is resolved and
printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := resolver.New(newAPIClient())
		res.TypeFilter = resolveTypeFlag

		switch {
		case len(args) == 1:
			return resolveSingle(res, args[0])
		case resolveListFlag != "":
			_, err := resolveList(res, resolveListFlag)
			return err
		case resolveFileFlag != "":
			_, err := resolveCatalogFile(res, resolveFileFlag)
			return err
		default:
			return resolveCatalogDir(res, globalConfig.CatalogDir)
		}
	},
}

// resolveSingle resolves one inline reference and prints the result.
func resolveSingle(res *resolver.Resolver, raw string) error {
	url, err := res.ResolveRaw(raw, raw)
	if err != nil {
		return fmt.Errorf("could not resolve %q: %w", raw, err)
	}
	fmt.Println(url)
	return nil
}

// resolveCatalogFile resolves one catalog in place and returns its summary.
func resolveCatalogFile(res *resolver.Resolver, path string) (catalog.Summary, error) {
	rows, err := catalog.ReadFile(path)
	if err != nil {
		return catalog.Summary{}, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	if len(rows) == 0 {
		log.Infof("Catalog %s has no rows, nothing to do", path)
		return catalog.Summary{}, nil
	}

	resolved, outcomes, summary := catalog.ResolveRows(res, rows)
	if err := catalog.WriteFile(path, resolved); err != nil {
		return summary, fmt.Errorf("failed to write catalog %s: %w", path, err)
	}

	for i, outcome := range outcomes {
		if !outcome.Success {
			log.Warnf("Row %s (%s): %s", rows[i].SrNo, rows[i].Name, outcome.Message)
		}
	}
	log.Infof("%s: %d rows, %d resolved, %d failed (%.1f%% success)",
		filepath.Base(path), summary.Total, summary.Resolved, summary.Failed, summary.SuccessRate())
	return summary, nil
}

// resolveCatalogDir resolves every catalog CSV and text reference list
// in dir, skipping the template file, and prints an overall summary.
func resolveCatalogDir(res *resolver.Resolver, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read catalog directory %s: %w", dir, err)
	}

	var overall catalog.Summary
	processed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(name, templateFileName) {
			log.Debugf("Skipping template catalog %s", name)
			continue
		}

		var summary catalog.Summary
		switch {
		case strings.EqualFold(filepath.Ext(name), ".csv"):
			summary, err = resolveCatalogFile(res, filepath.Join(dir, name))
		case strings.EqualFold(filepath.Ext(name), ".txt"):
			summary, err = resolveList(res, filepath.Join(dir, name))
		default:
			continue
		}
		if err != nil {
			log.WithError(err).Errorf("Failed to process %s", name)
			continue
		}
		processed++
		overall.Total += summary.Total
		overall.Resolved += summary.Resolved
		overall.Failed += summary.Failed
	}

	if processed == 0 {
		log.Warnf("No catalog or list files found in %s", dir)
		return nil
	}
	log.Infof("Overall: %d files, %d rows, %d resolved, %d failed (%.1f%% success)",
		processed, overall.Total, overall.Resolved, overall.Failed, overall.SuccessRate())
	return nil
}

// resolveList converts a text file of references into a catalog CSV next
// to it, named after the list file, and returns its summary.
func resolveList(res *resolver.Resolver, path string) (catalog.Summary, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- list path comes from a CLI flag
	if err != nil {
		return catalog.Summary{}, fmt.Errorf("failed to read list file %s: %w", path, err)
	}

	rows, summary := catalog.LinesToRows(res, strings.Split(string(raw), "\n"))
	if summary.Total == 0 {
		log.Infof("List %s has no references, nothing to do", path)
		return summary, nil
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
	if err := catalog.WriteFile(outPath, rows); err != nil {
		return summary, fmt.Errorf("failed to write catalog %s: %w", outPath, err)
	}

	log.Infof("%s: %d references, %d resolved, %d failed (%.1f%% success), catalog written to %s",
		filepath.Base(path), summary.Total, summary.Resolved, summary.Failed, summary.SuccessRate(), outPath)
	return summary, nil
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveFileFlag, "file", "f", "", "Resolve a single catalog CSV file")
	resolveCmd.Flags().StringVarP(&resolveListFlag, "list", "l", "", "Convert a text file of references (one per line) into a catalog")
	resolveCmd.Flags().StringVarP(&resolveTypeFlag, "type", "t", "", "Restrict name searches to one model type (e.g. lora, checkpoint)")
}
