// Package httpapi assembles the HTTP router: health and example endpoints,
// Prometheus metrics, and the WebSocket/SSE transports, behind the CORS,
// rate-limit and auth middleware chain.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ctfanout/ctstream/internal/auth"
	"github.com/ctfanout/ctstream/internal/bus"
	"github.com/ctfanout/ctstream/internal/certrecord"
	"github.com/ctfanout/ctstream/internal/config"
	"github.com/ctfanout/ctstream/internal/emitter/sse"
	"github.com/ctfanout/ctstream/internal/emitter/ws"
	"github.com/ctfanout/ctstream/internal/limiter"
	"github.com/ctfanout/ctstream/internal/metrics"
	"github.com/ctfanout/ctstream/internal/ratelimit"
)

// Dependencies bundles everything the router needs to wire its routes; it
// is assembled once at startup and handed to New.
type Dependencies struct {
	Hub         *bus.Hub
	Protocols   config.Protocols
	AuthChecker *auth.Checker
	ConnLimiter *limiter.ConnectionLimiter
	RateLimiter *ratelimit.Limiter
	WSCounter   *ws.ConnectionCounter
}

// New builds the full chi.Router for the server, wiring routes only for the
// protocols that are enabled.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// The connection limiter is enforced inside the SSE handler itself
	// (matching the original's per-stream acquire/release), not as router
	// middleware: wrapping every route here would double-count an SSE
	// connection, since the handler already calls TryAcquire/Release.
	r.Use(permissiveCORS)
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware)
	}
	r.Use(deps.AuthChecker.Middleware)

	r.Get("/health", handleHealth)
	r.Get("/example.json", handleExampleJSON)

	if deps.Protocols.Metrics {
		r.Handle("/metrics", metrics.Handler())
	}

	if deps.Protocols.WebSocket {
		r.Handle("/", &ws.Handler{Hub: deps.Hub, Counter: deps.WSCounter, Projection: certrecord.Lite})
		r.Handle("/full-stream", &ws.Handler{Hub: deps.Hub, Counter: deps.WSCounter, Projection: certrecord.Full})
		r.Handle("/domains-only", &ws.Handler{Hub: deps.Hub, Counter: deps.WSCounter, Projection: certrecord.Domains})
	}

	if deps.Protocols.SSE {
		r.Handle("/sse", &sse.Handler{Hub: deps.Hub, Limiter: deps.ConnLimiter})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

// permissiveCORS mirrors a permissive CORS layer: every origin and header is
// allowed, along with the GET and OPTIONS methods the server serves. No library in the pack provides just this one header
// set, so it is written by hand rather than pulled in as a dependency.
func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleExampleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(exampleMessage())
}

// exampleMessage is a fixed, documentation-only record returned by
// /example.json so consumers can see the wire shape without waiting for a
// real certificate to appear on a log.
func exampleMessage() certrecord.Message {
	subject := certrecord.Subject{CN: "example.com", O: "Example Organization", C: "US"}
	issuer := certrecord.Subject{CN: "Example CA", O: "Example Certificate Authority", C: "US"}
	chainIssuer := certrecord.Subject{CN: "Root CA", O: "Example Root Authority"}

	return certrecord.Message{
		MessageType: "certificate_update",
		Data: certrecord.Data{
			UpdateType: "X509LogEntry",
			LeafCert: certrecord.LeafCert{
				Subject:            subject,
				Issuer:             issuer,
				SerialNumber:       "0123456789ABCDEF",
				NotBefore:          1704067200,
				NotAfter:           1735689600,
				Fingerprint:        "AB:CD:EF:01:23:45:67:89:AB:CD:EF:01:23:45:67:89:AB:CD:EF:01",
				SHA1:               "AB:CD:EF:01:23:45:67:89:AB:CD:EF:01:23:45:67:89:AB:CD:EF:01",
				SHA256:             "AB:CD:EF:01:23:45:67:89:AB:CD:EF:01:23:45:67:89:AB:CD:EF:01:23:45:67:89:AB:CD:EF:01:23:45:67:89",
				SignatureAlgorithm: "sha256, rsa",
				IsCA:               false,
				AllDomains:         []string{"example.com", "www.example.com", "*.example.com"},
				AsDER:              "BASE64_ENCODED_DER_DATA",
			},
			Chain: []certrecord.ChainCert{{
				Subject:            issuer,
				Issuer:             chainIssuer,
				SerialNumber:       "00112233445566",
				NotBefore:          1672531200,
				NotAfter:           1767225600,
				Fingerprint:        "11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00:11:22:33:44",
				SHA1:               "11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00:11:22:33:44",
				SHA256:             "11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00",
				SignatureAlgorithm: "sha256, rsa",
				IsCA:               true,
			}},
			CertIndex: 123456789,
			Seen:      1704067200.123,
			Source: certrecord.Source{
				Name: "Google 'Argon2024' log",
				URL:  "https://ct.googleapis.com/logs/argon2024",
			},
		},
	}
}
