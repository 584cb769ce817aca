// Package store provides the durable key-value storage the client keeps
// tokens and cached payloads in. Implementations decide persistence and
// storage format; values are opaque strings.
package store

// Well-known keys. Token material lives in the secure partition, everything
// else in the general one.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyTokenExpiry  = "tokenExpiry"
)

type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// Partitions bundles the two storage areas the client uses. The secure
// partition must resist casual inspection (platform keychain, or at minimum
// a file readable only by the owner).
type Partitions struct {
	Secure  Store
	General Store
}
