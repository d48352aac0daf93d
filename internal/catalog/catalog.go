// Package catalog reads, resolves and writes the 4-column model catalog
// format: SrNo, Model_ID, Model_Name, Model_URL. An empty URL field marks
// a row as needing resolution.
package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Header is the column layout written at the top of every catalog file.
var Header = []string{"SrNo", "Model_ID", "Model_Name", "Model_URL"}

// Row is one catalog entry.
type Row struct {
	SrNo    string
	ModelID string
	Name    string
	URL     string
}

// headerMarkers are first-column values that identify a header row.
var headerMarkers = map[string]struct{}{
	"srno":  {},
	"sr no": {},
	"index": {},
}

func isHeaderRow(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	_, ok := headerMarkers[strings.ToLower(strings.TrimSpace(fields[0]))]
	return ok
}

// ReadRows parses catalog rows from r. A header row is tolerated and
// skipped. Rows with fewer than four fields are dropped silently; extra
// fields are ignored. Field values are whitespace-trimmed.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 4 {
			log.Debugf("Dropping catalog row with %d fields (need 4)", len(record))
			continue
		}
		if isHeaderRow(record) {
			continue
		}
		rows = append(rows, Row{
			SrNo:    strings.TrimSpace(record[0]),
			ModelID: strings.TrimSpace(record[1]),
			Name:    strings.TrimSpace(record[2]),
			URL:     strings.TrimSpace(record[3]),
		})
	}
	return rows, nil
}

// ReadFile reads catalog rows from a CSV file. A missing or empty file
// yields no rows and no error.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path) // #nosec G304 -- catalog paths come from user config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ReadRows(f)
}

// WriteRows writes a header followed by the given rows.
func WriteRows(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{row.SrNo, row.ModelID, row.Name, row.URL}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes catalog rows to path, replacing any existing file.
func WriteFile(path string, rows []Row) error {
	f, err := os.Create(path) // #nosec G304 -- catalog paths come from user config
	if err != nil {
		return err
	}
	if err := WriteRows(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
