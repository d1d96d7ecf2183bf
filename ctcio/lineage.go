package ctcio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/pkg/errors"
)

// LineageFileName is the CTC name of the lineage table in a result directory
const LineageFileName = "res_track.txt"

// ErrEmptyLineage is returned by ReadLineageFile for files without a single row
var ErrEmptyLineage = errors.New("lineage file has no rows")

// WriteLineage writes rows as "track_id start_frame end_frame parent_id" lines
func WriteLineage(w io.Writer, rows []celltrack.LineageRow) error {
	bw := bufio.NewWriter(w)
	for _, row := range rows {
		if _, err := fmt.Fprintf(bw, "%d %d %d %d\n", row.TrackID, row.Start, row.End, row.Parent); err != nil {
			return errors.Wrap(err, "write lineage")
		}
	}
	return errors.Wrap(bw.Flush(), "write lineage")
}

// ReadLineage parses lineage rows. Blank lines are skipped.
func ReadLineage(r io.Reader) ([]celltrack.LineageRow, error) {
	rows := make([]celltrack.LineageRow, 0)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, errors.Errorf("line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		var values [4]int
		for i, field := range fields {
			v, err := strconv.Atoi(field)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			if v < 0 {
				return nil, errors.Errorf("line %d: negative value %d", lineNo, v)
			}
			values[i] = v
		}
		rows = append(rows, celltrack.LineageRow{
			TrackID: values[0],
			Start:   values[1],
			End:     values[2],
			Parent:  values[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read lineage")
	}
	return rows, nil
}

// ReadLineageFile reads lineage table from file
func ReadLineageFile(path string) ([]celltrack.LineageRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open lineage %s", path)
	}
	defer f.Close()
	rows, err := ReadLineage(f)
	if err != nil {
		return nil, errors.Wrapf(err, "lineage %s", path)
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrEmptyLineage, "lineage %s", path)
	}
	return rows, nil
}
