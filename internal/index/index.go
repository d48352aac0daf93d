// Package index maintains a bleve full-text index over download history
// entries so past downloads can be searched by model name, type or file.
package index

import (
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-civitai-fetch/internal/models"
)

// OpenOrCreate opens the bleve index at path, creating it with the
// default mapping on first use.
func OpenOrCreate(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	if err != bleve.ErrorIndexPathDoesNotExist {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}

	log.Debugf("Creating new search index at %s", path)
	mapping := bleve.NewIndexMapping()
	idx, err = bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}
	return idx, nil
}

// entryDoc is the flattened document shape stored in the index.
type entryDoc struct {
	ModelName    string `json:"model_name"`
	ModelType    string `json:"model_type"`
	VersionName  string `json:"version_name"`
	Filename     string `json:"filename"`
	Folder       string `json:"folder"`
	Status       string `json:"status"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// IndexEntry adds or replaces a history entry in the index, keyed by its
// version ID.
func IndexEntry(idx bleve.Index, entry models.HistoryEntry) error {
	if idx == nil {
		return nil
	}
	doc := entryDoc{
		ModelName:    entry.ModelName,
		ModelType:    entry.ModelType,
		VersionName:  entry.VersionName,
		Filename:     entry.Filename,
		Folder:       entry.Folder,
		Status:       entry.Status,
		ErrorDetails: entry.ErrorDetails,
	}
	return idx.Index(strconv.Itoa(entry.VersionID), doc)
}

// Hit is one search result: the version ID the entry was stored under
// plus its relevance score.
type Hit struct {
	VersionID int
	Score     float64
}

// Search runs a query-string search over the index and returns up to
// limit hits.
func Search(idx bleve.Index, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 25
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed for %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{VersionID: id, Score: h.Score})
	}
	return hits, nil
}

// Remove deletes the index directory entirely so it can be recreated
// from the history database.
func Remove(path string) error {
	return os.RemoveAll(path)
}
