// Package catalog parses the pipe-delimited tabular output returned for a
// partition query into semi-structured catalog records.
package catalog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// fieldNames maps remote column headings to canonical field names. Headings
// not listed are kept verbatim.
var fieldNames = map[string]string{
	"No.":                  "number",
	"Object Name":          harvest.FieldObjectID,
	"RA(deg)":              harvest.FieldRA,
	"DEC(deg)":             harvest.FieldDec,
	"Type":                 "type",
	"Velocity":             "velocity",
	"Redshift":             "redshift",
	"Redshift Flag":        "redshiftFlag",
	"Magnitude and Filter": "magnitudeAndFilter",
	"Separation":           "separation",
	"References":           "references",
	"Notes":                "notes",
	"Photometry Points":    "photometryPoints",
	"Positions":            "positions",
	"Redshift Points":      "redshiftPoints",
	"Diameter Points":      "diameterPoints",
	"Associations":         "associations",
}

var bareNumber = regexp.MustCompile(`^\d+(\.\d+)?$`)

// maxLineBytes bounds a single result line; reference lists can be long.
const maxLineBytes = 1 << 20

// Parse reads a result table. Only lines containing a pipe are considered;
// the first such line is the header.
func Parse(r io.Reader) ([]harvest.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		header  []string
		records []harvest.Record
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.Contains(line, "|") {
			continue
		}
		parts := strings.Split(line, "|")
		if header == nil {
			header = normalizeHeader(parts)
			continue
		}
		records = append(records, buildRecord(header, parts))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan result table: %w", err)
	}
	return records, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(text string) ([]harvest.Record, error) {
	return Parse(strings.NewReader(text))
}

// ParseKey reads and parses a stored partition result.
func ParseKey(ctx context.Context, store harvest.Store, key string) ([]harvest.Record, error) {
	data, err := store.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", key, err)
	}
	records, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse index %s: %w", key, err)
	}
	return records, nil
}

func normalizeHeader(parts []string) []string {
	header := make([]string, len(parts))
	for i, part := range parts {
		if name, ok := fieldNames[part]; ok {
			header[i] = name
			continue
		}
		header[i] = part
	}
	return header
}

func buildRecord(header, parts []string) harvest.Record {
	record := make(harvest.Record, len(header))
	for i, heading := range header {
		value := ""
		if i < len(parts) {
			value = strings.TrimSpace(parts[i])
		}
		record[heading] = coerce(value)
	}
	return record
}

func coerce(value string) any {
	if !bareNumber.MatchString(value) {
		return value
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	return f
}
