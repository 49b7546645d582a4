// Package dedupe works out which sites still need crawling by comparing a
// site list against the result log.
package dedupe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// recordTerminator ends every line written by this package
const recordTerminator = "\r\n"

// ReadSites reads a newline-delimited site list, skipping blank lines
func ReadSites(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open site list: %w", err)
	}
	defer file.Close()

	sites, err := readLines(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read site list %s: %w", path, err)
	}
	return sites, nil
}

// LoggedSites returns the set of sites already present in the result log.
// A missing log means nothing was crawled yet. The site is the text before
// the first comma, so a site containing a comma never matches a candidate.
func LoggedSites(logPath string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})

	file, err := os.Open(logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return seen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open result log: %w", err)
	}
	defer file.Close()

	records, err := readLines(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read result log %s: %w", logPath, err)
	}

	for _, record := range records {
		site, _, _ := strings.Cut(record, ",")
		seen[site] = struct{}{}
	}
	return seen, nil
}

// Dedupe returns the candidates absent from the result log, in candidate order
func Dedupe(candidates []string, logPath string) ([]string, error) {
	seen, err := LoggedSites(logPath)
	if err != nil {
		return nil, err
	}

	deduped := make([]string, 0, len(candidates))
	for _, site := range candidates {
		if _, ok := seen[site]; !ok {
			deduped = append(deduped, site)
		}
	}

	logrus.Infof("Deduplicated %d candidate sites: %d already logged, %d remaining",
		len(candidates), len(candidates)-len(deduped), len(deduped))

	return deduped, nil
}

// WriteDeduped appends the deduped worklist to path, one site per record
func WriteDeduped(path string, sites []string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open deduped list: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, site := range sites {
		if _, err := w.WriteString(site + recordTerminator); err != nil {
			file.Close()
			return fmt.Errorf("failed to write deduped list: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush deduped list: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close deduped list: %w", err)
	}
	return nil
}

// readLines splits r on LF, trimming a trailing CR and a leading BOM, and
// drops blank lines
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
