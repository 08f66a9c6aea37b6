package keys

import "errors"

var (
	// ErrStorage wraps failures returned by the storage adapter during list, get, set, or lock.
	ErrStorage = errors.New("key storage failure")
	// ErrImport is returned when a stored record cannot be decoded into a key pair.
	ErrImport = errors.New("key record import failed")
	// ErrUnsupportedAlgorithm is returned when a provider does not implement an algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported key algorithm")
	// ErrKeyGenerationRace is returned when a freshly persisted key is still not observed
	// after the configured number of scans.
	ErrKeyGenerationRace = errors.New("generated key not observed after re-scan")
	// ErrInvalidPurpose is returned for a zero or malformed Purpose.
	ErrInvalidPurpose = errors.New("invalid key purpose")
)
