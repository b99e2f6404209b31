// Package ctdecode turns a raw RFC 6962 get-entries row into the wire
// CertRecord the rest of the system publishes. It is pure: no I/O, no
// shared state, so it can be exercised directly with arbitrary bytes in
// property tests and fuzzing (see spec §9 "Decoder is pure").
package ctdecode

import (
	"crypto/sha1" //nolint:gosec // fingerprint format is SHA-1 by wire contract, not a security control
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ctfanout/ctstream/internal/certrecord"

	"github.com/google/certificate-transparency-go/x509"
	"github.com/google/certificate-transparency-go/x509/pkix"
)

// Errors returned by Decode. All of them mean "drop this entry, keep
// going" — none are fatal to the watcher that called Decode.
var (
	ErrBadLeafBase64    = errors.New("ctdecode: leaf_input is not valid base64")
	ErrLeafTooShort      = errors.New("ctdecode: leaf_input shorter than MerkleTreeLeaf minimum")
	ErrUnknownEntryType  = errors.New("ctdecode: unrecognized entry_type")
	ErrCertLengthOverflow = errors.New("ctdecode: certificate length exceeds available bytes")
	ErrCertParse         = errors.New("ctdecode: failed to parse certificate DER")
)

const (
	entryTypeX509    = 0
	entryTypePrecert = 1

	x509CertOffset    = 12
	precertCertOffset = 44

	minLeafLen = 15
)

// Entry is the decoded result of one get-entries row: the leaf certificate
// record, the update type tag, and whatever chain certificates could be
// parsed out of extra_data.
type Entry struct {
	UpdateType string
	LeafCert   certrecord.LeafCert
	Chain      []certrecord.ChainCert
}

// Decode reverses MerkleTreeLeaf framing on leafInputB64, parses the
// embedded certificate DER, and decodes whatever chain certificates
// extraDataB64 carries. A non-nil error means the whole entry should be
// skipped; chain-element failures are absorbed internally and never
// surface as an error here (spec §4.2, §7).
func Decode(leafInputB64, extraDataB64 string) (*Entry, error) {
	leafBytes, err := base64.StdEncoding.DecodeString(leafInputB64)
	if err != nil {
		return nil, ErrBadLeafBase64
	}

	if len(leafBytes) < minLeafLen {
		return nil, ErrLeafTooShort
	}

	entryType := binary.BigEndian.Uint16(leafBytes[10:12])

	var updateType string
	var certOffset int
	switch entryType {
	case entryTypeX509:
		updateType = "X509LogEntry"
		certOffset = x509CertOffset
	case entryTypePrecert:
		updateType = "PrecertLogEntry"
		certOffset = precertCertOffset
	default:
		return nil, ErrUnknownEntryType
	}

	derBytes, ok := readLengthPrefixed(leafBytes, certOffset)
	if !ok {
		return nil, ErrCertLengthOverflow
	}

	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, ErrCertParse
	}

	leaf := buildLeafCert(cert, derBytes)
	leaf.AsDER = base64.StdEncoding.EncodeToString(derBytes)
	if entryType == entryTypePrecert {
		leaf.Extensions.CTLPoisonByte = true
	}

	chain := parseChain(extraDataB64)

	return &Entry{
		UpdateType: updateType,
		LeafCert:   leaf,
		Chain:      chain,
	}, nil
}

// readLengthPrefixed reads a 24-bit big-endian length at offset and
// returns the bytes that follow it, or ok=false if the length header or
// the data it claims don't fit in buf.
func readLengthPrefixed(buf []byte, offset int) ([]byte, bool) {
	if offset+3 > len(buf) {
		return nil, false
	}

	length := uint32(buf[offset])<<16 | uint32(buf[offset+1])<<8 | uint32(buf[offset+2])
	start := offset + 3
	remaining := buf[start:]
	if uint64(len(remaining)) < uint64(length) {
		return nil, false
	}

	return remaining[:length], true
}

// parseChain decodes the extra_data blob: a 3-byte total-length header
// followed by a sequence of 24-bit-length-prefixed DER certificates. Any
// element that fails to decode is skipped; the rest still publish.
func parseChain(extraDataB64 string) []certrecord.ChainCert {
	bytes, err := base64.StdEncoding.DecodeString(extraDataB64)
	if err != nil || len(bytes) < 3 {
		return nil
	}

	var chain []certrecord.ChainCert
	offset := 3

	for offset+3 <= len(bytes) {
		derBytes, ok := readLengthPrefixed(bytes, offset)
		if !ok {
			break
		}
		offset += 3 + len(derBytes)

		cert, err := x509.ParseCertificate(derBytes)
		if err != nil {
			continue
		}

		leaf := buildLeafCert(cert, derBytes)
		chain = append(chain, certrecord.ChainCert{
			Subject:            leaf.Subject,
			Issuer:             leaf.Issuer,
			SerialNumber:       leaf.SerialNumber,
			NotBefore:          leaf.NotBefore,
			NotAfter:           leaf.NotAfter,
			Fingerprint:        leaf.Fingerprint,
			SHA1:               leaf.SHA1,
			SHA256:             leaf.SHA256,
			SignatureAlgorithm: leaf.SignatureAlgorithm,
			IsCA:               leaf.IsCA,
		})
	}

	return chain
}

// buildLeafCert converts a parsed x509.Certificate plus its raw DER into
// the wire LeafCert shape, minus as_der (the caller sets that only for the
// entry's own leaf, never for chain elements).
func buildLeafCert(cert *x509.Certificate, der []byte) certrecord.LeafCert {
	subject := buildSubject(cert.Subject)
	issuer := buildSubject(cert.Issuer)

	allDomains := buildAllDomains(cert, subject.CN)

	return certrecord.LeafCert{
		Subject:            subject,
		Issuer:             issuer,
		SerialNumber:       formatSerialNumber(cert),
		NotBefore:          cert.NotBefore.Unix(),
		NotAfter:           cert.NotAfter.Unix(),
		Fingerprint:        colonHex(sha1Sum(der)),
		SHA1:               colonHex(sha1Sum(der)),
		SHA256:             colonHex(sha256Sum(der)),
		SignatureAlgorithm: signatureAlgorithmString(cert.SignatureAlgorithm),
		IsCA:               cert.IsCA,
		AllDomains:         allDomains,
	}
}

// buildAllDomains implements the §4.2 domain-set construction order: the
// subject CN first (when the cert is not a CA and CN is non-empty), then
// each SAN dNSName that isn't already present (a linear containment check,
// case-sensitive, per spec).
func buildAllDomains(cert *x509.Certificate, cn string) []string {
	domains := make([]string, 0, len(cert.DNSNames)+1)

	if !cert.IsCA && cn != "" {
		domains = append(domains, cn)
	}

	for _, name := range cert.DNSNames {
		found := false
		for _, existing := range domains {
			if existing == name {
				found = true
				break
			}
		}
		if !found {
			domains = append(domains, name)
		}
	}

	return domains
}

// buildSubject walks an RDN sequence keeping the last occurrence of each
// of the six RDN keys the wire contract exposes.
func buildSubject(name pkix.Name) certrecord.Subject {
	var s certrecord.Subject

	for _, atv := range name.Names {
		value, ok := atv.Value.(string)
		if !ok {
			continue
		}

		switch {
		case atv.Type.Equal(oidCommonName):
			s.CN = value
		case atv.Type.Equal(oidCountry):
			s.C = value
		case atv.Type.Equal(oidLocality):
			s.L = value
		case atv.Type.Equal(oidProvince):
			s.ST = value
		case atv.Type.Equal(oidOrganization):
			s.O = value
		case atv.Type.Equal(oidOrgUnit):
			s.OU = value
		}
	}

	return s
}

func formatSerialNumber(cert *x509.Certificate) string {
	sn := strings.ToUpper(cert.SerialNumber.Text(16))
	if len(sn)%2 == 1 {
		sn = "0" + sn
	}
	return sn
}

func sha1Sum(data []byte) []byte {
	sum := sha1.Sum(data) //nolint:gosec
	return sum[:]
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func colonHex(sum []byte) string {
	hexStr := strings.ToUpper(hex.EncodeToString(sum))

	var b strings.Builder
	b.Grow(len(hexStr) + len(hexStr)/2)
	for i := 0; i < len(hexStr); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hexStr[i : i+2])
	}
	return b.String()
}
