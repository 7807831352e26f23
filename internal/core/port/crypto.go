package port

// PasswordHasher produces self-describing password digests. NeedsRehash lets login upgrade
// digests written under older parameters.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}
