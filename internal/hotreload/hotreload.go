// Package hotreload watches the config file on disk and re-reads the subset
// of settings that are safe to change without a restart: rate limiting,
// connection limiting, and auth tokens. Each successful reload becomes
// Current and is sent to subscribers; components that do not subscribe or
// read Current keep the settings they were built with.
package hotreload

import (
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ctfanout/ctstream/internal/config"
)

// Reloadable is the slice of configuration that hot reload is allowed to
// change while the server is running.
type Reloadable struct {
	RateLimit       config.RateLimit
	ConnectionLimit config.ConnectionLimit
	Auth            config.Auth
}

// partial mirrors Reloadable but leaves every section optional, so
// loadReloadable can tell which sections the file sets. A section absent
// from the file comes back as its zero value.
type partial struct {
	RateLimit       *config.RateLimit       `yaml:"rate_limit"`
	ConnectionLimit *config.ConnectionLimit `yaml:"connection_limit"`
	Auth            *config.Auth            `yaml:"auth"`
}

// Watcher holds the current Reloadable config and notifies subscribers
// whenever the backing file changes.
type Watcher struct {
	path    string
	current atomic.Pointer[Reloadable]

	mu   sync.Mutex
	subs []chan Reloadable
}

// New builds a Watcher seeded with initial. It does not start watching
// until Start is called.
func New(initial Reloadable) *Watcher {
	w := &Watcher{}
	w.current.Store(&initial)
	return w
}

// Current returns the most recently applied Reloadable config.
func (w *Watcher) Current() Reloadable {
	return *w.current.Load()
}

// Subscribe returns a channel that receives every successfully reloaded
// config. The channel is buffered so a slow subscriber does not block
// reload delivery to others.
func (w *Watcher) Subscribe() <-chan Reloadable {
	ch := make(chan Reloadable, 4)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Start begins watching path for changes on a background goroutine. If
// path is empty, hot reload stays disabled and Start is a no-op.
func (w *Watcher) Start(path string) {
	if path == "" {
		log.Printf("hotreload: no config file specified, hot reload disabled")
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("hotreload: failed to create file watcher: %v", err)
		return
	}

	if err := fsw.Add(path); err != nil {
		log.Printf("hotreload: failed to watch %s: %v", path, err)
		fsw.Close()
		return
	}

	w.path = path
	log.Printf("hotreload: watching %s for changes", path)

	go w.run(fsw)
}

func (w *Watcher) run(fsw *fsnotify.Watcher) {
	defer fsw.Close()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Printf("hotreload: config file changed, reloading")
			reloaded, err := loadReloadable(w.path)
			if err != nil {
				log.Printf("hotreload: failed to reload config: %v", err)
				continue
			}

			w.current.Store(reloaded)
			w.broadcast(*reloaded)
			log.Printf("hotreload: config reloaded successfully")

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.Printf("hotreload: file watch error: %v", err)
		}
	}
}

func (w *Watcher) broadcast(r Reloadable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

func loadReloadable(path string) (*Reloadable, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p partial
	if err := yaml.Unmarshal(content, &p); err != nil {
		return nil, err
	}

	r := &Reloadable{}
	if p.RateLimit != nil {
		r.RateLimit = *p.RateLimit
	}
	if p.ConnectionLimit != nil {
		r.ConnectionLimit = *p.ConnectionLimit
	}
	if p.Auth != nil {
		r.Auth = *p.Auth
	}
	return r, nil
}
