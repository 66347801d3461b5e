package types

import (
	"crypto/md5"  //nolint:gosec // one of four selectable digest algorithms, not used for security
	"crypto/sha1" //nolint:gosec // one of four selectable digest algorithms, not used for security
	"crypto/sha256"
	"hash"

	"github.com/cespare/xxhash/v2"
	digest "github.com/opencontainers/go-digest"
)

// Algorithm names for the four hash_algorithm configuration choices (§6).
// go-digest only registers SHA256/SHA384/SHA512 out of the box, so SHA1, MD5,
// and the fast non-cryptographic xxh64 choice are registered below via its
// extension point — the same mechanism go-digest documents for custom
// algorithms, rather than inventing a parallel digest type.
const (
	AlgorithmXXH64  digest.Algorithm = "xxh64"
	AlgorithmSHA1   digest.Algorithm = "sha1"
	AlgorithmSHA256 digest.Algorithm = digest.SHA256
	AlgorithmMD5    digest.Algorithm = "md5"
)

func init() {
	digest.RegisterAlgorithm(AlgorithmXXH64, func() hash.Hash { return xxhash.New() })
	digest.RegisterAlgorithm(AlgorithmSHA1, sha1.New)
	digest.RegisterAlgorithm(AlgorithmMD5, md5.New)
	// AlgorithmSHA256 is pre-registered by go-digest itself provided
	// crypto/sha256 has been imported somewhere in the program; importing it
	// here too makes the registration independent of import order elsewhere.
	digest.RegisterAlgorithm(AlgorithmSHA256, sha256.New)
}

// FingerprintKind is a sum type, not a string flag (Design Notes §9):
// comparing "full" and "sampled" as strings anywhere in the pipeline is a
// latent bug source, and a Full and a Sampled entry must never compare equal
// even when their hex digests happen to match.
type FingerprintKind int

const (
	// KindFull means the entire byte stream was consumed to produce the digest.
	KindFull FingerprintKind = iota
	// KindSampled means only a deterministic head+tail byte range was consumed.
	KindSampled
)

func (k FingerprintKind) String() string {
	if k == KindSampled {
		return "sampled"
	}
	return "full"
}

// ParseFingerprintKind is the inverse of String, for reading persisted rows.
func ParseFingerprintKind(s string) (kind FingerprintKind, ok bool) {
	switch s {
	case "full":
		return KindFull, true
	case "sampled":
		return KindSampled, true
	default:
		return 0, false
	}
}

// Fingerprint is the comparable identity of a file's content as observed by
// one hashing operation. Two fingerprints are comparable only when both Kind
// and Digest's algorithm agree — the zero-value-safe Equal method enforces
// that rather than leaving it to caller discipline.
type Fingerprint struct {
	Kind   FingerprintKind
	Digest digest.Digest
	// SampleBytes is the total bytes actually consumed (head+tail) when
	// Kind == KindSampled; zero when Kind == KindFull.
	SampleBytes int64
}

// Equal reports whether two fingerprints identify the same content under the
// spec's comparability rule: (kind, digest) equality, never digest alone.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Kind == o.Kind && f.Digest == o.Digest
}
