package security

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/signature"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// PublicKeyHash is the SHA-256 digest of a certificate's public key bytes.
func PublicKeyHash(cert *ndn.Data) []byte {
	sum := sha256.Sum256(cert.Content)
	return sum[:]
}

// IsCertificate reports whether d is shaped like a certificate.
func IsCertificate(d *ndn.Data) bool {
	return d.ContentType == ndn.ContentTypeKey && naming.IsCertificateName(d.Name)
}

func publicKeyBytes(h *keyset.Handle) ([]byte, error) {
	pub, err := h.Public()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pub.WriteWithNoSecrets(keyset.NewBinaryWriter(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// VerifierFor builds a signature verifier from a certificate's public keyset.
func VerifierFor(cert *ndn.Data) (tink.Verifier, error) {
	if !IsCertificate(cert) {
		return nil, protocol.Errorf(protocol.KindValidation, "%s is not a certificate", cert.Name)
	}
	h, err := keyset.ReadWithNoSecrets(keyset.NewBinaryReader(bytes.NewReader(cert.Content)))
	if err != nil {
		return nil, protocol.NewError(protocol.KindValidation, "read public keyset of "+cert.Name.String(), err)
	}
	v, err := signature.NewVerifier(h)
	if err != nil {
		return nil, protocol.NewError(protocol.KindValidation, "verifier for "+cert.Name.String(), err)
	}
	return v, nil
}

// EncodeData renders any Data packet as base64 of its wire form.
func EncodeData(d *ndn.Data) string {
	return base64.StdEncoding.EncodeToString(d.Encode())
}

// DecodeData reverses EncodeData. Whitespace in text is ignored.
func DecodeData(text string) (*ndn.Data, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
	if err != nil {
		return nil, err
	}
	return ndn.DecodeData(raw)
}

// EncodeCertificate renders a certificate in base64 .ndncert form.
func EncodeCertificate(cert *ndn.Data) string { return EncodeData(cert) }

func DecodeCertificate(text string) (*ndn.Data, error) {
	d, err := DecodeData(text)
	if err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	if !IsCertificate(d) {
		return nil, fmt.Errorf("decode certificate: %s is not a certificate", d.Name)
	}
	return d, nil
}

func ReadCertificateFile(path string) (*ndn.Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeCertificate(string(b))
}

func WriteCertificateFile(path string, cert *ndn.Data) error {
	return os.WriteFile(path, []byte(EncodeCertificate(cert)+"\n"), 0o644)
}
