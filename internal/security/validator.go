package security

import (
	"sync"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// Validator is the trust contract consumed by the exchange engines.
type Validator interface {
	Validate(d *ndn.Data) error
}

// CertificateSource resolves a key locator to a certificate.
type CertificateSource interface {
	Certificate(name ndn.Name) (*ndn.Data, bool)
}

// SchemaValidator checks data against a TrustSchema, walking the certificate
// chain named by key locators until it reaches an anchor.
type SchemaValidator struct {
	schema  *TrustSchema
	sources []CertificateSource

	mu        sync.Mutex
	cache     map[string]*ndn.Data
	verifiers map[string]tink.Verifier
}

func NewValidator(schema *TrustSchema, sources ...CertificateSource) *SchemaValidator {
	return &SchemaValidator{
		schema:    schema,
		sources:   sources,
		cache:     make(map[string]*ndn.Data),
		verifiers: make(map[string]tink.Verifier),
	}
}

// AddCertificate makes cert available as a chain link. It is not trusted
// until a Validate call reaches an anchor through it.
func (v *SchemaValidator) AddCertificate(cert *ndn.Data) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[cert.Name.String()] = cert
}

func (v *SchemaValidator) Validate(d *ndn.Data) error {
	err := v.validate(d, 0)
	if err != nil {
		log.Debug().Stringer("name", d.Name).Err(err).Msg("security validation failed")
	}
	return err
}

func invalid(format string, args ...any) error {
	return protocol.Errorf(protocol.KindValidation, format, args...)
}

func (v *SchemaValidator) validate(d *ndn.Data, depth int) error {
	if depth > v.schema.MaxChainDepth {
		return invalid("certificate chain of %s exceeds depth %d", d.Name, v.schema.MaxChainDepth)
	}
	if a, ok := v.schema.anchor(d.Name); ok {
		if string(a.Encode()) != string(d.Encode()) {
			return invalid("%s does not match its trust anchor", d.Name)
		}
		return nil
	}
	if d.SigInfo.Type != ndn.SignatureEd25519 {
		return invalid("%s: unsupported signature type %d", d.Name, d.SigInfo.Type)
	}
	locator := d.SigInfo.KeyLocator
	if len(locator) == 0 {
		return invalid("%s has no key locator", d.Name)
	}
	rule, ok := v.schema.rule(d.Name)
	if !ok {
		return invalid("no trust rule for %s", d.Name)
	}
	signer, ok := naming.IdentityOfKeyName(locator)
	if !ok {
		return invalid("%s: key locator %s is not a key name", d.Name, locator)
	}
	if !rule.Permits(signer, d.Name) {
		return invalid("rule %s rejects signer %s for %s", rule.ID, signer, d.Name)
	}
	cert, ok := v.lookup(locator)
	if !ok {
		return invalid("%s: signer certificate %s unknown", d.Name, locator)
	}
	if cert.Name.Equal(d.Name) {
		return invalid("%s is self-signed and not a trust anchor", d.Name)
	}
	verifier, err := v.verifier(cert)
	if err != nil {
		return err
	}
	if err := verifier.Verify(d.SigValue, d.SignedPortion()); err != nil {
		return protocol.NewError(protocol.KindValidation, "bad signature on "+d.Name.String(), err)
	}
	return v.validate(cert, depth+1)
}

func (v *SchemaValidator) lookup(locator ndn.Name) (*ndn.Data, bool) {
	if a, ok := v.schema.anchor(locator); ok {
		return a, true
	}
	v.mu.Lock()
	if c, ok := v.cache[locator.String()]; ok {
		v.mu.Unlock()
		return c, true
	}
	for _, c := range v.cache {
		if locator.IsPrefixOf(c.Name) && c.Name.Len() == locator.Len()+2 {
			v.mu.Unlock()
			return c, true
		}
	}
	v.mu.Unlock()
	for _, a := range v.schema.anchors {
		if locator.IsPrefixOf(a.Name) && a.Name.Len() == locator.Len()+2 {
			return a, true
		}
	}
	for _, src := range v.sources {
		if c, ok := src.Certificate(locator); ok {
			return c, true
		}
	}
	return nil, false
}

func (v *SchemaValidator) verifier(cert *ndn.Data) (tink.Verifier, error) {
	key := string(cert.Encode())
	v.mu.Lock()
	defer v.mu.Unlock()
	if vf, ok := v.verifiers[key]; ok {
		return vf, nil
	}
	vf, err := VerifierFor(cert)
	if err != nil {
		return nil, err
	}
	v.verifiers[key] = vf
	return vf, nil
}

// AcceptAll validates nothing. Tests and offline tools use it.
type AcceptAll struct{}

func (AcceptAll) Validate(*ndn.Data) error { return nil }
