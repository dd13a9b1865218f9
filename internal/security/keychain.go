// Package security provides the signing and trust contracts used by the
// exchange engines: a tink-backed KeyChain and a trust-schema Validator.
package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/rs/zerolog/log"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/signature"
	"github.com/tink-crypto/tink-go/v2/tink"
)

var (
	ErrUnknownIdentity = errors.New("security: unknown identity")
	ErrIdentityExists  = errors.New("security: identity already exists")
	ErrUnknownKey      = errors.New("security: no key for signing info")
)

const (
	keyFileSuffix  = ".key.json"
	certFileSuffix = ".ndncert"

	CertificateFreshness = time.Hour
)

// Signer signs data in place, setting its signature info and value.
type Signer interface {
	Sign(d *ndn.Data, info SigningInfo) error
}

// SigningInfo selects the signing key. Exactly one field should be set; the
// key locator becomes the certificate name, or the key name for KeyName.
type SigningInfo struct {
	Identity ndn.Name
	CertName ndn.Name
	KeyName  ndn.Name
}

func SignWithIdentity(id ndn.Name) SigningInfo   { return SigningInfo{Identity: id} }
func SignWithCertificate(c ndn.Name) SigningInfo { return SigningInfo{CertName: c} }
func SignWithKey(k ndn.Name) SigningInfo         { return SigningInfo{KeyName: k} }

func (s SigningInfo) String() string {
	switch {
	case len(s.CertName) > 0:
		return "cert:" + s.CertName.String()
	case len(s.KeyName) > 0:
		return "key:" + s.KeyName.String()
	default:
		return "id:" + s.Identity.String()
	}
}

// Identity is a named key pair with its certificate.
type Identity struct {
	Name        ndn.Name
	Certificate *ndn.Data
	handle      *keyset.Handle
	signer      tink.Signer
}

func (id *Identity) CertName() ndn.Name { return id.Certificate.Name }

func (id *Identity) KeyName() ndn.Name {
	cn, err := naming.ParseCertificateName(id.Certificate.Name)
	if err != nil {
		return nil
	}
	return cn.KeyName()
}

// KeyChain holds identities and the certificates it has learned.
type KeyChain struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	certs      map[string]*ndn.Data
	now        func() time.Time
}

func NewKeyChain() *KeyChain {
	return &KeyChain{
		identities: make(map[string]*Identity),
		certs:      make(map[string]*ndn.Data),
		now:        time.Now,
	}
}

// SetClock replaces the clock used for certificate versions.
func (k *KeyChain) SetClock(now func() time.Time) { k.now = now }

// CreateIdentity generates an Ed25519 key and a certificate for name, signed by
// issuer or self-signed when issuer is nil.
func (k *KeyChain) CreateIdentity(name ndn.Name, issuer *Identity) (*Identity, error) {
	if len(name) == 0 {
		return nil, fmt.Errorf("%w: empty identity name", ErrUnknownIdentity)
	}
	k.mu.RLock()
	_, exists := k.identities[name.String()]
	k.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrIdentityExists, name)
	}

	h, err := keyset.NewHandle(signature.ED25519KeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("security: generate key: %w", err)
	}
	id, err := newIdentity(name, h)
	if err != nil {
		return nil, err
	}
	pub, err := publicKeyBytes(h)
	if err != nil {
		return nil, fmt.Errorf("security: export public key: %w", err)
	}
	keyID := make([]byte, 8)
	if _, err := rand.Read(keyID); err != nil {
		return nil, fmt.Errorf("security: key id: %w", err)
	}
	issuerID := ndn.NewGenericComponent(naming.SelfRevoker)
	if issuer != nil {
		last, _ := issuer.Name.At(-1)
		issuerID = ndn.NewGenericComponent(string(last.Value))
	}
	certName := naming.CertificateName{
		Identity: name,
		KeyID:    ndn.Component{Type: ndn.TypeGenericComponent, Value: keyID},
		IssuerID: issuerID,
		Version:  ndn.NewVersionComponent(uint64(k.now().UnixMilli())),
	}.Name()
	cert := ndn.NewData(certName, pub)
	cert.ContentType = ndn.ContentTypeKey
	cert.FreshnessPeriod = CertificateFreshness
	id.Certificate = cert

	if issuer == nil {
		err = id.sign(cert, certName)
	} else {
		err = issuer.sign(cert, issuer.CertName())
	}
	if err != nil {
		return nil, err
	}
	k.add(id)
	log.Debug().Stringer("identity", name).Stringer("cert", certName).Msg("security created identity")
	return id, nil
}

func newIdentity(name ndn.Name, h *keyset.Handle) (*Identity, error) {
	s, err := signature.NewSigner(h)
	if err != nil {
		return nil, fmt.Errorf("security: signer: %w", err)
	}
	return &Identity{Name: name.Clone(), handle: h, signer: s}, nil
}

func (id *Identity) sign(d *ndn.Data, locator ndn.Name) error {
	d.SigInfo = ndn.SignatureInfo{Type: ndn.SignatureEd25519, KeyLocator: locator.Clone()}
	sig, err := id.signer.Sign(d.SignedPortion())
	if err != nil {
		return fmt.Errorf("security: sign %s: %w", d.Name, err)
	}
	d.SigValue = sig
	return nil
}

func (k *KeyChain) add(id *Identity) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.identities[id.Name.String()] = id
	k.certs[id.Certificate.Name.String()] = id.Certificate
}

func (k *KeyChain) Identity(name ndn.Name) (*Identity, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, ok := k.identities[name.String()]
	return id, ok
}

// Identities lists identities ordered by name.
func (k *KeyChain) Identities() []*Identity {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*Identity, 0, len(k.identities))
	for _, id := range k.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.Compare(out[j].Name) < 0 })
	return out
}

// Anchors returns the self-signed certificates the keychain knows, ordered
// by name.
func (k *KeyChain) Anchors() []*ndn.Data {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []*ndn.Data
	for _, c := range k.certs {
		cn, err := naming.ParseCertificateName(c.Name)
		if err != nil || string(cn.IssuerID.Value) != naming.SelfRevoker {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.Compare(out[j].Name) < 0 })
	return out
}

// AddCertificate records a certificate learned out of band.
func (k *KeyChain) AddCertificate(cert *ndn.Data) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.certs[cert.Name.String()] = cert
}

// Certificate resolves a certificate name, or a key name to any certificate of that key.
func (k *KeyChain) Certificate(name ndn.Name) (*ndn.Data, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if c, ok := k.certs[name.String()]; ok {
		return c, true
	}
	for _, c := range k.certs {
		if name.IsPrefixOf(c.Name) && naming.IsCertificateName(c.Name) && c.Name.Len() == name.Len()+2 {
			return c, true
		}
	}
	return nil, false
}

func (k *KeyChain) resolve(info SigningInfo) (*Identity, ndn.Name, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	switch {
	case len(info.CertName) > 0:
		for _, id := range k.identities {
			if id.Certificate.Name.Equal(info.CertName) {
				return id, info.CertName, nil
			}
		}
	case len(info.KeyName) > 0:
		for _, id := range k.identities {
			if id.KeyName().Equal(info.KeyName) {
				return id, info.KeyName, nil
			}
		}
	case len(info.Identity) > 0:
		if id, ok := k.identities[info.Identity.String()]; ok {
			return id, id.Certificate.Name, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKey, info)
}

// Sign implements Signer.
func (k *KeyChain) Sign(d *ndn.Data, info SigningInfo) error {
	id, locator, err := k.resolve(info)
	if err != nil {
		return err
	}
	return id.sign(d, locator)
}

func fileStem(name ndn.Name) string {
	return url.PathEscape(name.String())
}

// Save writes every identity's cleartext keyset and certificate under dir.
func (k *KeyChain) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	for _, id := range k.Identities() {
		stem := filepath.Join(dir, fileStem(id.Name))
		f, err := os.OpenFile(stem+keyFileSuffix, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		err = insecurecleartextkeyset.Write(id.handle, keyset.NewJSONWriter(f))
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("security: save key %s: %w", id.Name, err)
		}
		if err := WriteCertificateFile(stem+certFileSuffix, id.Certificate); err != nil {
			return fmt.Errorf("security: save certificate %s: %w", id.Name, err)
		}
	}
	return nil
}

// Load restores identities saved by Save. Certificates without a key file
// are added as known certificates.
func (k *KeyChain) Load(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), certFileSuffix) {
			continue
		}
		cert, err := ReadCertificateFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		stem := strings.TrimSuffix(e.Name(), certFileSuffix)
		keyPath := filepath.Join(dir, stem+keyFileSuffix)
		if _, err := os.Stat(keyPath); err != nil {
			k.AddCertificate(cert)
			continue
		}
		f, err := os.Open(keyPath)
		if err != nil {
			return err
		}
		h, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
		f.Close()
		if err != nil {
			return fmt.Errorf("security: load key %s: %w", keyPath, err)
		}
		cn, err := naming.ParseCertificateName(cert.Name)
		if err != nil {
			return err
		}
		id, err := newIdentity(cn.Identity, h)
		if err != nil {
			return err
		}
		id.Certificate = cert
		k.add(id)
	}
	return nil
}
