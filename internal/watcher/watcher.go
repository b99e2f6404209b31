// Package watcher polls a single CT log for new entries, decodes them, and
// publishes each one onto the shared bus.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/publicsuffix"

	"github.com/ctfanout/ctstream/internal/bus"
	"github.com/ctfanout/ctstream/internal/certrecord"
	"github.com/ctfanout/ctstream/internal/config"
	"github.com/ctfanout/ctstream/internal/ctdecode"
	"github.com/ctfanout/ctstream/internal/health"
	"github.com/ctfanout/ctstream/internal/statestore"
)

// initialBacklog bounds how far back a fresh (never-seen-before) log starts
// reading: the last 1000 entries rather than the whole tree.
const initialBacklog = 1000

// errorBackoff is how long a watcher sleeps after a tree-size or
// entries fetch exhausts its retries.
const errorBackoff = 5 * time.Second

// progressLogEvery throttles the human-readable liveness log to once per
// this many published entries, instead of once per entry.
const progressLogEvery = 500

type sthResponse struct {
	TreeSize uint64 `json:"tree_size"`
}

type rawEntry struct {
	LeafInput string `json:"leaf_input"`
	ExtraData string `json:"extra_data"`
}

type entriesResponse struct {
	Entries []rawEntry `json:"entries"`
}

// Watcher polls one CT log on its own goroutine.
type Watcher struct {
	Name string
	URL  string

	client *http.Client
	cfg    config.CTLog

	state  *statestore.Store
	health *health.Tracker
	hub    *bus.Hub

	processed uint64
}

// New builds a Watcher for a single log. cfg supplies polling/retry/health
// tuning shared by every watcher.
func New(name, url string, cfg config.CTLog, state *statestore.Store, hub *bus.Hub) *Watcher {
	return &Watcher{
		Name:   name,
		URL:    url,
		client: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second},
		cfg:    cfg,
		state:  state,
		health: health.NewTracker(cfg.HealthyThreshold, cfg.UnhealthyThreshold),
		hub:    hub,
	}
}

// Run polls the log until ctx is cancelled. It never returns an error: every
// failure is logged and retried according to cfg.
func (w *Watcher) Run(ctx context.Context) {
	log.Printf("watcher: starting %s (%s)", w.Name, w.URL)

	pollInterval := time.Duration(w.cfg.PollIntervalMs) * time.Millisecond

	current, resumed := w.state.Index(w.URL)
	if resumed {
		log.Printf("watcher: %s resuming from saved index %d", w.Name, current)
	} else {
		size, err := w.getTreeSize(ctx)
		if err != nil {
			log.Printf("watcher: %s failed to get initial tree size: %v, starting at 0", w.Name, err)
			current = 0
		} else {
			current = saturatingSub(size, initialBacklog)
			log.Printf("watcher: %s starting fresh at %d (tree size %d)", w.Name, current, size)
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("watcher: %s stopping", w.Name)
			return
		default:
		}

		if !w.health.IsHealthy() {
			log.Printf("watcher: %s unhealthy (%d total errors), waiting for recovery check", w.Name, w.health.TotalErrors())
			if !sleepCtx(ctx, time.Duration(w.cfg.HealthCheckIntervalSecs)*time.Second) {
				return
			}
			if _, err := w.getTreeSize(ctx); err != nil {
				log.Printf("watcher: %s health check failed, staying disabled: %v", w.Name, err)
				continue
			}
			log.Printf("watcher: %s health check passed, resuming", w.Name)
		}

		treeSize, err := w.getTreeSize(ctx)
		if err != nil {
			log.Printf("watcher: %s failed to get tree size: %v", w.Name, err)
			if !sleepCtx(ctx, errorBackoff) {
				return
			}
			continue
		}

		if current >= treeSize {
			if !sleepCtx(ctx, pollInterval) {
				return
			}
			continue
		}

		end := min64(current+w.cfg.BatchSize, treeSize-1)

		entries, err := w.fetchEntries(ctx, current, end)
		if err != nil {
			log.Printf("watcher: %s failed to fetch entries [%d,%d]: %v", w.Name, current, end, err)
			if !sleepCtx(ctx, errorBackoff) {
				return
			}
			continue
		}

		now := time.Now()
		for i, raw := range entries {
			w.publishEntry(raw, current+uint64(i), now)
		}

		current = end + 1
		w.state.Update(w.URL, current, treeSize, now)
	}
}

func (w *Watcher) publishEntry(raw rawEntry, index uint64, seen time.Time) {
	decoded, err := ctdecode.Decode(raw.LeafInput, raw.ExtraData)
	if err != nil {
		log.Printf("watcher: %s failed to decode entry %d: %v", w.Name, index, err)
		return
	}

	chain := make([]certrecord.ChainCert, len(decoded.Chain))
	copy(chain, decoded.Chain)

	msg := certrecord.Message{
		MessageType: "certificate_update",
		Data: certrecord.Data{
			UpdateType: decoded.UpdateType,
			LeafCert:   decoded.LeafCert,
			Chain:      chain,
			CertIndex:  index,
			Seen:       float64(seen.UnixMilli()) / 1000.0,
			Source:     certrecord.Source{Name: w.Name, URL: w.URL},
		},
	}

	env, err := certrecord.Serialize(msg)
	if err != nil {
		log.Printf("watcher: %s failed to serialize entry %d: %v", w.Name, index, err)
		return
	}

	w.hub.Publish(env)

	w.processed++
	if w.processed%progressLogEvery == 0 {
		log.Printf("watcher: %s processed %d entries, last domain %s", w.Name, w.processed, registrableDomain(decoded.LeafCert.AllDomains))
	}
}

// registrableDomain collapses the first domain in domains down to its
// registrable (eTLD+1) form, so the periodic progress log stays short and
// readable instead of printing long wildcard/subdomain strings verbatim.
func registrableDomain(domains []string) string {
	if len(domains) == 0 {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimPrefix(domains[0], "*."))
	if err != nil {
		return domains[0]
	}
	return reg
}

// getTreeSize fetches the log's current tree size, retrying with backoff,
// and records the outcome against the log's health tracker.
func (w *Watcher) getTreeSize(ctx context.Context) (uint64, error) {
	var size uint64

	err := backoff.Retry(func() error {
		url := fmt.Sprintf("%s/ct/v1/get-sth", w.URL)
		var resp sthResponse
		if err := w.getJSON(ctx, url, &resp); err != nil {
			return err
		}
		size = resp.TreeSize
		return nil
	}, w.retryPolicy(ctx))

	if err != nil {
		w.health.RecordFailure()
		return 0, err
	}

	w.health.RecordSuccess()
	return size, nil
}

// fetchEntries fetches entries [start, end] inclusive, retrying with
// backoff, and records the outcome against the log's health tracker.
func (w *Watcher) fetchEntries(ctx context.Context, start, end uint64) ([]rawEntry, error) {
	var entries []rawEntry

	err := backoff.Retry(func() error {
		url := fmt.Sprintf("%s/ct/v1/get-entries?start=%d&end=%d", w.URL, start, end)
		var resp entriesResponse
		if err := w.getJSON(ctx, url, &resp); err != nil {
			return err
		}
		entries = resp.Entries
		return nil
	}, w.retryPolicy(ctx))

	if err != nil {
		w.health.RecordFailure()
		return nil, err
	}

	w.health.RecordSuccess()
	return entries, nil
}

func (w *Watcher) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (w *Watcher) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(w.cfg.RetryInitialDelayMs) * time.Millisecond
	b.MaxInterval = time.Duration(w.cfg.RetryMaxDelayMs) * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.cfg.RetryMaxAttempts)), ctx)
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// sleepCtx sleeps for d or returns early (reporting false) if ctx is
// cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
