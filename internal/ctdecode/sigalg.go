package ctdecode

import "github.com/google/certificate-transparency-go/x509"

// signatureAlgorithmString renders a parsed signature algorithm the way the
// wire contract expects. The word order is not uniform across families: RSA
// and RSA-PSS render hash-first ("sha256, rsa"), DSA and ECDSA render
// key-type-first ("dsa, sha1" / "ecdsa, sha1"), and Ed25519 has no hash
// suffix at all. Anything the library can't classify renders as "unknown".
func signatureAlgorithmString(alg x509.SignatureAlgorithm) string {
	switch alg {
	case x509.MD2WithRSA:
		return "md2, rsa"
	case x509.MD5WithRSA:
		return "md5, rsa"
	case x509.SHA1WithRSA:
		return "sha1, rsa"
	case x509.SHA256WithRSA:
		return "sha256, rsa"
	case x509.SHA384WithRSA:
		return "sha384, rsa"
	case x509.SHA512WithRSA:
		return "sha512, rsa"
	case x509.SHA256WithRSAPSS:
		return "sha256, rsa-pss"
	case x509.SHA384WithRSAPSS:
		return "sha384, rsa-pss"
	case x509.SHA512WithRSAPSS:
		return "sha512, rsa-pss"
	case x509.DSAWithSHA1:
		return "dsa, sha1"
	case x509.DSAWithSHA256:
		return "dsa, sha256"
	case x509.ECDSAWithSHA1:
		return "ecdsa, sha1"
	case x509.ECDSAWithSHA256:
		return "ecdsa, sha256"
	case x509.ECDSAWithSHA384:
		return "ecdsa, sha384"
	case x509.ECDSAWithSHA512:
		return "ecdsa, sha512"
	case x509.PureEd25519:
		return "ed25519"
	default:
		return "unknown"
	}
}
