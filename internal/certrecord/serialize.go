package certrecord

import "encoding/json"

// liteLeafCert is LeafCert without as_der.
type liteLeafCert struct {
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
	Extensions         Extensions `json:"extensions"`
}

// liteData is Data without chain.
type liteData struct {
	UpdateType string       `json:"update_type"`
	LeafCert   liteLeafCert `json:"leaf_cert"`
	CertIndex  uint64       `json:"cert_index"`
	Seen       float64      `json:"seen"`
	Source     Source       `json:"source"`
}

type liteMessage struct {
	MessageType string   `json:"message_type"`
	Data        liteData `json:"data"`
}

// DomainsOnlyData is the minimal domains-only projection's data payload.
type DomainsOnlyData struct {
	UpdateType string   `json:"update_type"`
	AllDomains []string `json:"all_domains"`
	Seen       float64  `json:"seen"`
	Source     Source   `json:"source"`
}

// DomainsOnlyMessage is the domains-only projection. Per spec §9 Open
// Question, this is deliberately still tagged "certificate_update" even
// though its shape differs from Message — this preserves observed wire
// behavior rather than introducing a cleaner "domain_update" tag.
type DomainsOnlyMessage struct {
	MessageType string          `json:"message_type"`
	Data        DomainsOnlyData `json:"data"`
}

func (m Message) toLite() liteMessage {
	return liteMessage{
		MessageType: m.MessageType,
		Data: liteData{
			UpdateType: m.Data.UpdateType,
			LeafCert: liteLeafCert{
				Subject:            m.Data.LeafCert.Subject,
				Issuer:             m.Data.LeafCert.Issuer,
				SerialNumber:       m.Data.LeafCert.SerialNumber,
				NotBefore:          m.Data.LeafCert.NotBefore,
				NotAfter:           m.Data.LeafCert.NotAfter,
				Fingerprint:        m.Data.LeafCert.Fingerprint,
				SHA1:               m.Data.LeafCert.SHA1,
				SHA256:             m.Data.LeafCert.SHA256,
				SignatureAlgorithm: m.Data.LeafCert.SignatureAlgorithm,
				IsCA:               m.Data.LeafCert.IsCA,
				AllDomains:         m.Data.LeafCert.AllDomains,
				Extensions:         m.Data.LeafCert.Extensions,
			},
			CertIndex: m.Data.CertIndex,
			Seen:      m.Data.Seen,
			Source:    m.Data.Source,
		},
	}
}

func (m Message) toDomainsOnly() DomainsOnlyMessage {
	return DomainsOnlyMessage{
		MessageType: "certificate_update",
		Data: DomainsOnlyData{
			UpdateType: m.Data.UpdateType,
			AllDomains: m.Data.LeafCert.AllDomains,
			Seen:       m.Data.Seen,
			Source:     m.Data.Source,
		},
	}
}

// Envelope is the immutable triple of pre-serialized projection buffers
// shared by reference among every subscriber of a single published record.
type Envelope struct {
	Full        []byte
	Lite        []byte
	DomainsOnly []byte
}

// Serialize produces all three projections for msg once. A serialization
// failure aborts the envelope; it is not fatal to the caller (the watcher
// just skips publishing that record).
func Serialize(msg Message) (*Envelope, error) {
	full, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	lite, err := json.Marshal(msg.toLite())
	if err != nil {
		return nil, err
	}

	domainsOnly, err := json.Marshal(msg.toDomainsOnly())
	if err != nil {
		return nil, err
	}

	return &Envelope{Full: full, Lite: lite, DomainsOnly: domainsOnly}, nil
}

// Projection selects one of the three wire shapes an emitter serves.
type Projection int

const (
	Lite Projection = iota
	Full
	Domains
)

// Bytes returns the pre-serialized buffer for the given projection.
func (e *Envelope) Bytes(p Projection) []byte {
	switch p {
	case Full:
		return e.Full
	case Domains:
		return e.DomainsOnly
	default:
		return e.Lite
	}
}
