package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSchema = errors.New("security: invalid trust schema")

// Relation constrains the signer identity against the data name.
type Relation string

const (
	RelationEqual            Relation = "equal"
	RelationIsPrefixOf       Relation = "is-prefix-of"
	RelationIsStrictPrefixOf Relation = "is-strict-prefix-of"
	RelationAny              Relation = "any"
)

const defaultMaxChainDepth = 8

func (r Relation) valid() bool {
	switch r {
	case RelationEqual, RelationIsPrefixOf, RelationIsStrictPrefixOf, RelationAny:
		return true
	}
	return false
}

// Holds reports whether signer relates to name under r.
func (r Relation) Holds(signer, name ndn.Name) bool {
	switch r {
	case RelationEqual:
		return signer.Equal(name)
	case RelationIsPrefixOf:
		return signer.IsPrefixOf(name)
	case RelationIsStrictPrefixOf:
		return signer.IsPrefixOf(name) && signer.Len() < name.Len()
	case RelationAny:
		return true
	}
	return false
}

type NameFilter struct {
	Regex  string `yaml:"regex,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

type SignerFilter struct {
	Relation Relation `yaml:"relation"`
	// Prefix optionally pins the signer identity under a namespace.
	Prefix string `yaml:"prefix,omitempty"`
}

// Rule applies to data whose name matches Name; the first matching rule wins.
type Rule struct {
	ID     string       `yaml:"id"`
	Name   NameFilter   `yaml:"name"`
	Signer SignerFilter `yaml:"signer"`

	re           *regexp.Regexp
	prefix       ndn.Name
	signerPrefix ndn.Name
}

func (r *Rule) compile() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule without id", ErrInvalidSchema)
	}
	if r.Name.Regex == "" && r.Name.Prefix == "" {
		return fmt.Errorf("%w: rule %s has no name filter", ErrInvalidSchema, r.ID)
	}
	if r.Name.Regex != "" {
		re, err := regexp.Compile(r.Name.Regex)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidSchema, r.ID, err)
		}
		r.re = re
	}
	if r.Name.Prefix != "" {
		p, err := ndn.ParseName(r.Name.Prefix)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidSchema, r.ID, err)
		}
		r.prefix = p
	}
	if r.Signer.Relation == "" {
		r.Signer.Relation = RelationIsPrefixOf
	}
	if !r.Signer.Relation.valid() {
		return fmt.Errorf("%w: rule %s: unknown relation %q", ErrInvalidSchema, r.ID, r.Signer.Relation)
	}
	if r.Signer.Prefix != "" {
		p, err := ndn.ParseName(r.Signer.Prefix)
		if err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidSchema, r.ID, err)
		}
		r.signerPrefix = p
	}
	return nil
}

func (r *Rule) Matches(name ndn.Name) bool {
	if r.prefix != nil && !r.prefix.IsPrefixOf(name) {
		return false
	}
	if r.re != nil && !r.re.MatchString(name.String()) {
		return false
	}
	return true
}

// Permits checks the signer identity against the rule.
func (r *Rule) Permits(signer, name ndn.Name) bool {
	if r.signerPrefix != nil && !r.signerPrefix.IsPrefixOf(signer) {
		return false
	}
	return r.Signer.Relation.Holds(signer, name)
}

type Anchor struct {
	File   string `yaml:"file,omitempty"`
	Base64 string `yaml:"base64,omitempty"`
}

// TrustSchema is the YAML document driving a Validator.
type TrustSchema struct {
	MaxChainDepth int      `yaml:"max_chain_depth,omitempty"`
	Rules         []Rule   `yaml:"rules"`
	Anchors       []Anchor `yaml:"anchors,omitempty"`

	anchors []*ndn.Data
}

// ParseTrustSchema decodes and compiles a schema. Relative anchor files are
// resolved against baseDir.
func ParseTrustSchema(raw []byte, baseDir string) (*TrustSchema, error) {
	var s TrustSchema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := s.compile(baseDir); err != nil {
		return nil, err
	}
	return &s, nil
}

func LoadTrustSchema(path string) (*TrustSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTrustSchema(raw, filepath.Dir(path))
}

func (s *TrustSchema) compile(baseDir string) error {
	if s.MaxChainDepth <= 0 {
		s.MaxChainDepth = defaultMaxChainDepth
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("%w: no rules", ErrInvalidSchema)
	}
	for i := range s.Rules {
		if err := s.Rules[i].compile(); err != nil {
			return err
		}
	}
	for _, a := range s.Anchors {
		var (
			cert *ndn.Data
			err  error
		)
		switch {
		case a.Base64 != "":
			cert, err = DecodeCertificate(a.Base64)
		case a.File != "":
			path := a.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			cert, err = ReadCertificateFile(path)
		default:
			err = errors.New("empty anchor")
		}
		if err != nil {
			return fmt.Errorf("%w: anchor: %v", ErrInvalidSchema, err)
		}
		s.anchors = append(s.anchors, cert)
	}
	return nil
}

// AddAnchor trusts cert unconditionally.
func (s *TrustSchema) AddAnchor(cert *ndn.Data) {
	s.anchors = append(s.anchors, cert)
}

func (s *TrustSchema) anchor(name ndn.Name) (*ndn.Data, bool) {
	for _, a := range s.anchors {
		if a.Name.Equal(name) {
			return a, true
		}
	}
	return nil, false
}

func (s *TrustSchema) rule(name ndn.Name) (*Rule, bool) {
	for i := range s.Rules {
		if s.Rules[i].Matches(name) {
			return &s.Rules[i], true
		}
	}
	return nil, false
}

// Marshal renders the schema back to YAML, anchors included as base64.
func (s *TrustSchema) Marshal() ([]byte, error) {
	out := TrustSchema{MaxChainDepth: s.MaxChainDepth, Rules: s.Rules}
	for _, a := range s.anchors {
		out.Anchors = append(out.Anchors, Anchor{Base64: EncodeCertificate(a)})
	}
	return yaml.Marshal(&out)
}

// DefaultTrustSchema relates certificates, revocation records and nacks to
// hierarchical signers, and accepts any anchored signer for exchange packets.
func DefaultTrustSchema(anchors ...*ndn.Data) *TrustSchema {
	s := &TrustSchema{
		Rules: []Rule{
			{ID: "revocation-nack", Name: NameFilter{Regex: `/REVOKE/.*/nack/t=[0-9]+$`}, Signer: SignerFilter{Relation: RelationAny}},
			{ID: "revocation-record", Name: NameFilter{Regex: `/REVOKE/`}, Signer: SignerFilter{Relation: RelationIsPrefixOf}},
			{ID: "certificate", Name: NameFilter{Regex: `/KEY/[^/]+/[^/]+/v=[0-9]+$`}, Signer: SignerFilter{Relation: RelationIsPrefixOf}},
			{ID: "exchange", Name: NameFilter{Regex: `.*`}, Signer: SignerFilter{Relation: RelationAny}},
		},
	}
	if err := s.compile(""); err != nil {
		panic(err)
	}
	for _, a := range anchors {
		s.AddAnchor(a)
	}
	return s
}
