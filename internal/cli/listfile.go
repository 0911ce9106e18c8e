package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/casesweep/internal/detail"
)

// readLines reads one entry per line, skipping blanks and # comments and
// dropping repeats
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return lines, nil
}

// parseCaseLine reads "caseNo countyNo" or "caseNo,countyNo"
func parseCaseLine(line string) (detail.CaseRef, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return detail.CaseRef{}, fmt.Errorf("want \"caseNo countyNo\", got %q", line)
	}
	county, err := strconv.Atoi(fields[1])
	if err != nil {
		return detail.CaseRef{}, fmt.Errorf("county number in %q: %w", line, err)
	}
	return detail.CaseRef{CaseNo: fields[0], CountyNo: county}, nil
}

// readCaseList loads case references from a list file. Without a sweep to
// number them, result indexes are left out of the detail links.
func readCaseList(path string) ([]detail.CaseRef, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	refs := make([]detail.CaseRef, 0, len(lines))
	for i, line := range lines {
		ref, err := parseCaseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", path, i+1, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// parseDate accepts YYYY-MM-DD; empty means today
func parseDate(flag, value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, value)
	}
	return t, nil
}
