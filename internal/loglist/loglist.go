// Package loglist fetches and filters the list of CT logs to watch, using
// Google's loglist3 schema plus whatever operator-defined logs configuration
// adds on top of it.
package loglist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/certificate-transparency-go/loglist3"
)

// ErrNoUsableLogs is returned when the fetched list (plus any custom logs)
// yields nothing watchable.
var ErrNoUsableLogs = errors.New("loglist: no usable logs found")

// Log is the trimmed-down record the rest of the system cares about: a
// human-readable name and the URL to poll, already normalized.
type Log struct {
	Name string
	URL  string
}

// CustomLog is an operator-defined log not carried by the public list, read
// straight out of configuration.
type CustomLog struct {
	Name string
	URL  string
}

// Fetcher downloads and filters the CT log list.
type Fetcher struct {
	HTTPClient *http.Client
	ListURL    string
}

// NewFetcher builds a Fetcher pointed at Google's published log list by
// default; listURL overrides it when non-empty (tests, mirrors, etc.).
func NewFetcher(listURL string, timeout time.Duration) *Fetcher {
	url := listURL
	if url == "" {
		url = loglist3.LogListURL
	}
	return &Fetcher{
		HTTPClient: &http.Client{Timeout: timeout},
		ListURL:    url,
	}
}

// Fetch downloads the log list, keeps only usable (non-retired) logs, and
// appends custom logs with their URLs normalized. An unreachable or
// malformed upstream list is returned as an error, and ErrNoUsableLogs is
// returned when the combined result is empty.
func (f *Fetcher) Fetch(ctx context.Context, custom []CustomLog) ([]Log, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ListURL, nil)
	if err != nil {
		return nil, fmt.Errorf("loglist: build request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loglist: fetch %s: %w", f.ListURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loglist: fetch %s: status %d", f.ListURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("loglist: read response: %w", err)
	}

	parsed, err := loglist3.NewFromJSON(body)
	if err != nil {
		return nil, fmt.Errorf("loglist: parse: %w", err)
	}

	var logs []Log
	for _, operator := range parsed.Operators {
		for _, ctLog := range operator.Logs {
			if !isUsable(ctLog) {
				continue
			}
			logs = append(logs, Log{
				Name: ctLog.Description,
				URL:  normalizeURL(ctLog.URL),
			})
		}
	}

	for _, c := range custom {
		logs = append(logs, Log{Name: c.Name, URL: normalizeURL(c.URL)})
	}

	if len(logs) == 0 {
		return nil, ErrNoUsableLogs
	}

	return logs, nil
}

// isUsable mirrors the published schema's convention: a log with no state at
// all is assumed usable, and a log is usable only while it carries a usable
// timestamp and no retired timestamp.
func isUsable(l *loglist3.Log) bool {
	if l.State == nil {
		return true
	}
	return l.State.Usable != nil && l.State.Retired == nil
}

// normalizeURL guarantees a scheme and strips the trailing slash, so every
// log's URL can be joined with "get-sth"/"get-entries" the same way.
func normalizeURL(raw string) string {
	url := strings.TrimSuffix(raw, "/")
	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") {
		return url
	}
	return "https://" + url
}
