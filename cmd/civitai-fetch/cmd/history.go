package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-fetch/internal/database"
	"go-civitai-fetch/internal/index"
	"go-civitai-fetch/internal/models"
)

var historySearchLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local download history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(globalConfig.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		var entries []models.HistoryEntry
		if err := db.FoldEntries(func(entry models.HistoryEntry) error {
			entries = append(entries, entry)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to scan history database: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No downloads recorded yet.")
			return nil
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })
		printEntries(entries)
		return nil
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search recorded downloads by name, type or file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := index.OpenOrCreate(globalConfig.IndexPath)
		if err != nil {
			return err
		}
		defer idx.Close()

		hits, err := index.Search(idx, args[0], historySearchLimitFlag)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No matches.")
			return nil
		}

		db, err := database.Open(globalConfig.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		var entries []models.HistoryEntry
		for _, hit := range hits {
			entry, err := db.GetEntry(hit.VersionID)
			if err != nil {
				log.Debugf("Indexed version %d missing from database, skipping", hit.VersionID)
				continue
			}
			entries = append(entries, entry)
		}
		printEntries(entries)
		return nil
	},
}

var historyRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the search index from the history database",
	Long: `Deletes the search index and reindexes every entry in the history
database. Use this after restoring a database backup or when the index
has drifted from the recorded downloads.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(globalConfig.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		count, err := rebuildIndex(db, globalConfig.IndexPath)
		if err != nil {
			return err
		}
		log.Infof("Rebuilt search index with %d history entries", count)
		return nil
	},
}

// rebuildIndex recreates the search index at indexPath from the history
// database and returns the number of entries indexed.
func rebuildIndex(db *database.DB, indexPath string) (int, error) {
	if err := index.Remove(indexPath); err != nil {
		return 0, fmt.Errorf("failed to remove index at %s: %w", indexPath, err)
	}
	idx, err := index.OpenOrCreate(indexPath)
	if err != nil {
		return 0, err
	}
	defer idx.Close()

	count := 0
	err = db.FoldEntries(func(entry models.HistoryEntry) error {
		if err := index.IndexEntry(idx, entry); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to reindex history: %w", err)
	}
	return count, nil
}

func printEntries(entries []models.HistoryEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATUS\tTYPE\tMODEL\tVERSION\tFILE")
	for _, e := range entries {
		when := time.Unix(e.Timestamp, 0).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			when, e.Status, e.ModelType, e.ModelName, e.VersionName, e.Filename)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyRebuildCmd)

	historySearchCmd.Flags().IntVarP(&historySearchLimitFlag, "limit", "n", 25, "Maximum number of results")
}
