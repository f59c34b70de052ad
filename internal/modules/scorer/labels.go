package scorer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// LoadLabels reads a lot_id,label,comment,created_at CSV. Rows whose label
// is not 0 or 1 are skipped with a warning. A missing file yields no labels.
func LoadLabels(path string, log zerolog.Logger) (map[string]int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()

	return ReadLabels(f, log)
}

// ReadLabels parses the labels CSV from r
func ReadLabels(r io.Reader, log zerolog.Logger) (map[string]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read labels header: %w", err)
	}

	idCol, labelCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "lot_id":
			idCol = i
		case "label":
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("labels file must have lot_id and label columns")
	}

	labels := map[string]int{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read labels line %d: %w", line, err)
		}
		if idCol >= len(record) || labelCol >= len(record) {
			log.Warn().Int("line", line).Msg("Skipping short labels row")
			continue
		}

		id := strings.TrimSpace(record[idCol])
		label, err := strconv.Atoi(strings.TrimSpace(record[labelCol]))
		if id == "" || err != nil || (label != 0 && label != 1) {
			log.Warn().Int("line", line).Str("lot_id", id).Str("label", record[labelCol]).Msg("Skipping labels row, label must be 0 or 1")
			continue
		}
		labels[id] = label
	}
	return labels, nil
}
