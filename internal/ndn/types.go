package ndn

// Packet and element type numbers.
const (
	TypeImplicitSha256Digest   uint64 = 1
	TypeParametersSha256Digest uint64 = 2
	TypeInterest               uint64 = 5
	TypeData                   uint64 = 6
	TypeName                   uint64 = 7
	TypeGenericComponent       uint64 = 8
	TypeNonce                  uint64 = 10
	TypeInterestLifetime       uint64 = 12
	TypeMustBeFresh            uint64 = 18
	TypeMetaInfo               uint64 = 20
	TypeContent                uint64 = 21
	TypeSignatureInfo          uint64 = 22
	TypeSignatureValue         uint64 = 23
	TypeContentType            uint64 = 24
	TypeFreshnessPeriod        uint64 = 25
	TypeSignatureType          uint64 = 27
	TypeKeyLocator             uint64 = 28
	TypeForwardingHint         uint64 = 30
	TypeCanBePrefix            uint64 = 33
	TypeApplicationParameters  uint64 = 36
	TypeVersionComponent       uint64 = 54
	TypeTimestampComponent     uint64 = 56

	TypeNack       uint64 = 800
	TypeNackReason uint64 = 801
)

// ContentType values carried in MetaInfo.
type ContentType uint64

const (
	ContentTypeBlob ContentType = 0
	ContentTypeKey  ContentType = 2
	ContentTypeNack ContentType = 3
)

// SignatureType values carried in SignatureInfo.
type SignatureType uint64

const (
	SignatureDigestSha256 SignatureType = 0
	SignatureEd25519      SignatureType = 5
)
