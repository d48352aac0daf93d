package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-civitai-fetch/internal/database"
	"go-civitai-fetch/internal/helpers"
	"go-civitai-fetch/internal/models"
)

var (
	torrentAnnounceFlag  []string
	torrentModelIDsFlag  []int
	torrentOutputDirFlag string
	torrentOverwriteFlag bool
	torrentMagnetFlag    bool
)

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate .torrent files for downloaded model folders",
	Long: `Generates a BitTorrent metainfo (.torrent) file for each folder that
holds successfully downloaded models, based on the download history.
Tracker announce URLs come from the config or the --announce flag.`,
	RunE: runTorrent,
}

func runTorrent(cmd *cobra.Command, args []string) error {
	trackers := globalConfig.Torrent.Trackers
	if len(torrentAnnounceFlag) > 0 {
		trackers = torrentAnnounceFlag
	}
	trackers = validTrackers(trackers)
	if len(trackers) == 0 {
		return errors.New("at least one valid tracker announce URL is required (config Torrent.Trackers or --announce)")
	}

	outputDir := globalConfig.Torrent.OutputDir
	if cmd.Flags().Changed("output-dir") {
		outputDir = torrentOutputDirFlag
	}
	overwrite := globalConfig.Torrent.Overwrite || torrentOverwriteFlag
	magnets := globalConfig.Torrent.MagnetLinks || torrentMagnetFlag

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	wanted := make(map[int]struct{}, len(torrentModelIDsFlag))
	for _, id := range torrentModelIDsFlag {
		wanted[id] = struct{}{}
	}

	// One torrent per folder, regardless of how many versions landed there.
	folders := make(map[string]struct{})
	err = db.FoldEntries(func(entry models.HistoryEntry) error {
		if entry.Status == models.StatusError || entry.Folder == "" {
			return nil
		}
		if len(wanted) > 0 {
			if _, ok := wanted[entry.ModelID]; !ok {
				return nil
			}
		}
		folders[entry.Folder] = struct{}{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan history database: %w", err)
	}
	if len(folders) == 0 {
		log.Info("No downloaded folders found in history, nothing to do")
		return nil
	}

	log.Infof("Generating torrents for %d folders", len(folders))
	failed := 0
	for folder := range folders {
		if err := generateTorrent(folder, trackers, outputDir, overwrite, magnets); err != nil {
			log.WithError(err).Errorf("Failed to generate torrent for %s", folder)
			failed++
		}
	}

	log.Infof("Torrent generation complete: %d ok, %d failed", len(folders)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d torrents failed to generate", failed)
	}
	return nil
}

// generateTorrent writes <folder-name>.torrent (and optionally a magnet
// link file) for one source directory.
func generateTorrent(sourceDir string, trackers []string, outputDir string, overwrite, magnets bool) error {
	stat, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("source folder %s: %w", sourceDir, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("source path %s is not a directory", sourceDir)
	}

	torrentName := filepath.Base(sourceDir) + ".torrent"
	outPath := filepath.Join(sourceDir, torrentName)
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0750); err != nil {
			return fmt.Errorf("creating output directory %s: %w", outputDir, err)
		}
		outPath = filepath.Join(outputDir, torrentName)
	}

	if !overwrite {
		if _, err := os.Stat(outPath); err == nil {
			log.Infof("Skipping existing torrent %s (use --overwrite to replace)", outPath)
			return nil
		}
	}

	pieceLength := int64(globalConfig.Torrent.PieceLengthKB) * 1024
	if pieceLength <= 0 {
		pieceLength = 256 * 1024
	}

	info := metainfo.Info{
		PieceLength: pieceLength,
		Name:        filepath.Base(sourceDir),
	}
	if err := info.BuildFromFilePath(sourceDir); err != nil {
		return fmt.Errorf("building torrent info from %s: %w", sourceDir, err)
	}
	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling torrent info: %w", err)
	}

	mi := metainfo.MetaInfo{
		InfoBytes:    infoBytes,
		Announce:     trackers[0],
		AnnounceList: [][]string{trackers},
		CreatedBy:    "civitai-fetch",
		CreationDate: time.Now().Unix(),
	}

	f, err := os.Create(helpers.SanitizePath(outPath))
	if err != nil {
		return fmt.Errorf("creating torrent file %s: %w", outPath, err)
	}
	if err := mi.Write(f); err != nil {
		f.Close()
		_ = os.Remove(outPath)
		return fmt.Errorf("writing torrent file %s: %w", outPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing torrent file %s: %w", outPath, err)
	}
	log.Infof("Generated torrent %s", outPath)

	if magnets {
		magnetPath := strings.TrimSuffix(outPath, ".torrent") + "-magnet.txt"
		uri := magnetURI(&mi, info.Name, trackers)
		if err := os.WriteFile(magnetPath, []byte(uri+"\n"), 0644); err != nil {
			return fmt.Errorf("writing magnet file %s: %w", magnetPath, err)
		}
		log.Infof("Generated magnet link %s", magnetPath)
	}
	return nil
}

// validTrackers keeps only http(s) and udp announce URLs.
func validTrackers(trackers []string) []string {
	valid := make([]string, 0, len(trackers))
	for _, tracker := range trackers {
		parsed, err := url.Parse(tracker)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https" && parsed.Scheme != "udp") {
			log.Warnf("Skipping invalid tracker URL %q", tracker)
			continue
		}
		valid = append(valid, tracker)
	}
	return valid
}

// magnetURI builds a magnet link for the generated metainfo.
func magnetURI(mi *metainfo.MetaInfo, name string, trackers []string) string {
	parts := []string{
		fmt.Sprintf("magnet:?xt=urn:btih:%s", mi.HashInfoBytes().HexString()),
		fmt.Sprintf("dn=%s", url.QueryEscape(name)),
	}
	for _, tracker := range trackers {
		parts = append(parts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
	}
	return strings.Join(parts, "&")
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	torrentCmd.Flags().StringSliceVar(&torrentAnnounceFlag, "announce", nil, "Tracker announce URL (repeatable, overrides config)")
	torrentCmd.Flags().IntSliceVar(&torrentModelIDsFlag, "model-id", nil, "Restrict generation to specific model IDs")
	torrentCmd.Flags().StringVarP(&torrentOutputDirFlag, "output-dir", "o", "", "Directory for generated .torrent files (default: inside each model folder)")
	torrentCmd.Flags().BoolVarP(&torrentOverwriteFlag, "overwrite", "f", false, "Overwrite existing .torrent files")
	torrentCmd.Flags().BoolVar(&torrentMagnetFlag, "magnet-links", false, "Also write a magnet link file next to each torrent")
}
