// Package certrecord defines the wire contract for certificate update
// messages: the data model shared by every watcher and every emitter.
package certrecord

// Subject is the JSON shape used for both a certificate's subject and
// issuer. Only the six RDN keys the fan-out protocol cares about are kept;
// everything else in the RDN sequence is ignored.
type Subject struct {
	CN string `json:"CN,omitempty"`
	C  string `json:"C,omitempty"`
	L  string `json:"L,omitempty"`
	ST string `json:"ST,omitempty"`
	O  string `json:"O,omitempty"`
	OU string `json:"OU,omitempty"`
}

// Extensions carries the handful of certificate extension facts the wire
// contract exposes. ctl_poison_byte is never omitted: clients rely on it
// being present (and false) on ordinary X509 entries.
type Extensions struct {
	CTLPoisonByte bool `json:"ctl_poison_byte"`
}

// LeafCert is the full record for the entry's own certificate.
type LeafCert struct {
	Subject            Subject    `json:"subject"`
	Issuer             Subject    `json:"issuer"`
	SerialNumber       string     `json:"serial_number"`
	NotBefore          int64      `json:"not_before"`
	NotAfter           int64      `json:"not_after"`
	Fingerprint        string     `json:"fingerprint"`
	SHA1               string     `json:"sha1"`
	SHA256             string     `json:"sha256"`
	SignatureAlgorithm string     `json:"signature_algorithm"`
	IsCA               bool       `json:"is_ca"`
	AllDomains         []string   `json:"all_domains"`
	AsDER              string     `json:"as_der,omitempty"`
	Extensions         Extensions `json:"extensions"`
}

// ChainCert is the record shape for a chain (non-leaf) certificate: the
// same facts as LeafCert minus all_domains and extensions, and as_der is
// always left empty so it's omitted.
type ChainCert struct {
	Subject            Subject `json:"subject"`
	Issuer             Subject `json:"issuer"`
	SerialNumber       string  `json:"serial_number"`
	NotBefore          int64   `json:"not_before"`
	NotAfter           int64   `json:"not_after"`
	Fingerprint        string  `json:"fingerprint"`
	SHA1               string  `json:"sha1"`
	SHA256             string  `json:"sha256"`
	SignatureAlgorithm string  `json:"signature_algorithm"`
	IsCA               bool    `json:"is_ca"`
	AsDER              string  `json:"as_der,omitempty"`
}

// Source identifies the CT log a record was observed on.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Data is the full-projection payload under "data".
type Data struct {
	UpdateType string      `json:"update_type"`
	LeafCert   LeafCert    `json:"leaf_cert"`
	Chain      []ChainCert `json:"chain,omitempty"`
	CertIndex  uint64      `json:"cert_index"`
	Seen       float64     `json:"seen"`
	Source     Source      `json:"source"`
}

// Message is the full wire record: message_type plus data.
type Message struct {
	MessageType string `json:"message_type"`
	Data        Data   `json:"data"`
}

// HeartbeatJSON is the literal payload sent on WS heartbeat ticks.
const HeartbeatJSON = `{"message_type":"heartbeat"}`
