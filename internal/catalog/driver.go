package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"go-civitai-fetch/internal/resolver"

	log "github.com/sirupsen/logrus"
)

// Summary aggregates the result of a batch resolution pass.
type Summary struct {
	Total    int
	Resolved int
	Failed   int
}

// SuccessRate returns the resolved percentage over the full input set.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Resolved) / float64(s.Total) * 100
}

// Outcome is the per-row result of a resolution pass. Outcomes map 1:1 to
// input row order.
type Outcome struct {
	Message string
	Success bool
}

// ResolveRows runs the resolver over every row and returns a new table
// with resolved URLs filled in, leaving the input untouched. The URL
// field is overwritten only on success; failed rows keep their original
// value. The display name serves as the name hint for rows whose
// reference cannot be classified. Rows are processed sequentially, so
// output order matches input order.
func ResolveRows(res *resolver.Resolver, rows []Row) ([]Row, []Outcome, Summary) {
	out := make([]Row, len(rows))
	outcomes := make([]Outcome, len(rows))
	summary := Summary{Total: len(rows)}

	for i, row := range rows {
		out[i] = row
		log.Debugf("Processing catalog row %s: %s - %s", row.SrNo, row.Name, row.URL)

		url, err := res.ResolveRaw(row.URL, row.Name)
		if err != nil {
			summary.Failed++
			outcomes[i] = Outcome{Message: err.Error()}
			log.Warnf("Failed to resolve %q: %v", row.Name, err)
			continue
		}

		out[i].URL = url
		summary.Resolved++
		outcomes[i] = Outcome{Success: true, Message: url}
		log.Infof("Resolved: %s", row.Name)
	}

	return out, outcomes, summary
}

// LinesToRows converts a list of mixed references (URLs, IDs, or names,
// one per line) into catalog rows with generated sequence numbers. Resolved
// rows carry the canonical URL and, where recoverable, the model's ID and
// display name; failed lines keep the original text in both the name and
// URL columns so they can be reviewed by hand.
func LinesToRows(res *resolver.Resolver, lines []string) ([]Row, Summary) {
	var rows []Row
	var summary Summary

	n := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n++
		summary.Total++

		url, err := res.ResolveRaw(line, line)
		if err != nil {
			summary.Failed++
			rows = append(rows, Row{
				SrNo:    strconv.Itoa(n),
				ModelID: "Failed",
				Name:    line,
				URL:     line,
			})
			log.Warnf("Failed to resolve %q: %v", line, err)
			continue
		}

		modelID, name := recoverIdentity(res, url, line, n)
		rows = append(rows, Row{
			SrNo:    strconv.Itoa(n),
			ModelID: modelID,
			Name:    name,
			URL:     url,
		})
		summary.Resolved++
		log.Infof("Resolved: %s", line)
	}

	return rows, summary
}

// recoverIdentity derives the model ID and display name columns for a
// resolved line. The version behind the canonical URL yields the model
// ID; the model record supplies a display name unless the original input
// already read as a name.
func recoverIdentity(res *resolver.Resolver, downloadURL, original string, seq int) (modelID, name string) {
	modelID = "Unknown"
	name = fmt.Sprintf("Model_%d", seq)
	if resolver.IsNameLike(original) {
		name = original
	}

	ref := resolver.Classify(downloadURL)
	if ref.Kind != resolver.KindDownloadEndpoint {
		return modelID, name
	}

	version, err := res.Client.GetModelVersionByID(ref.VersionID)
	if err != nil || version.ModelId == 0 {
		return modelID, name
	}
	modelID = strconv.Itoa(version.ModelId)

	if !resolver.IsNameLike(original) {
		if model, err := res.Client.GetModelByID(version.ModelId); err == nil && model.Name != "" {
			name = model.Name
		}
	}
	return modelID, name
}
