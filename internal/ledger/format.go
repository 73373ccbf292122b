// Package ledger persists per-item failures and share results as
// line-structured text files that a later run can read back.
//
// Line format: sequence | path segment... | value
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quarkpan/quarkpan/internal/models"
)

// Separator joins the fields of a line.
const Separator = " | "

// cleanSegment keeps a field from introducing an extra separator or line break.
func cleanSegment(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, Separator, " / ")
}

func formatLine(seq int, path []string, value string) string {
	fields := make([]string, 0, len(path)+2)
	fields = append(fields, strconv.Itoa(seq))
	for _, seg := range path {
		fields = append(fields, cleanSegment(seg))
	}
	fields = append(fields, cleanSegment(value))
	return strings.Join(fields, Separator)
}

func parseLine(line string) (int, []string, string, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), Separator)
	if len(fields) < 2 {
		return 0, nil, "", fmt.Errorf("expected at least 2 fields, got %d", len(fields))
	}
	seq, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, nil, "", fmt.Errorf("invalid sequence number %q", fields[0])
	}
	value := strings.TrimSpace(fields[len(fields)-1])
	if value == "" {
		return 0, nil, "", fmt.Errorf("empty value field")
	}
	var path []string
	if len(fields) > 2 {
		path = append(path, fields[1:len(fields)-1]...)
	}
	return seq, path, value, nil
}

// FormatRecord renders a retry record as one line without the trailing newline.
func FormatRecord(r models.RetryRecord) string {
	return formatLine(r.Seq, r.Path, r.NodeID)
}

// ParseRecord parses one retry ledger line.
func ParseRecord(line string) (models.RetryRecord, error) {
	seq, path, id, err := parseLine(line)
	if err != nil {
		return models.RetryRecord{}, err
	}
	return models.RetryRecord{Seq: seq, Path: path, NodeID: id}, nil
}

// FormatShareRecord renders a share result as one line without the trailing newline.
func FormatShareRecord(r models.ShareRecord) string {
	return formatLine(r.Seq, r.Path, r.URL)
}

// ParseShareRecord parses one share output line.
func ParseShareRecord(line string) (models.ShareRecord, error) {
	seq, path, u, err := parseLine(line)
	if err != nil {
		return models.ShareRecord{}, err
	}
	return models.ShareRecord{Seq: seq, Path: path, URL: u}, nil
}
