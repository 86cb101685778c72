package oath

import (
	"fmt"

	"github.com/99designs/keyring"
)

// ErrNotFound is returned by AccessKeyStore.Get when no secret is stored for
// the device.
var ErrNotFound = keyring.ErrKeyNotFound

// AccessKeyStore persists derived access keys in the OS secure store, keyed
// by device identifier. It is the durable counterpart of AccessKeyCache;
// entries survive process restarts and optionally sit behind the keychain's
// own authentication gate.
type AccessKeyStore struct {
	Keyring keyring.Keyring
}

func (s *AccessKeyStore) Get(deviceID string) ([]byte, error) {
	item, err := s.Keyring.Get(deviceID)
	if err != nil {
		return nil, err
	}
	return item.Data, nil
}

func (s *AccessKeyStore) Set(deviceID string, key []byte, requireAuthentication bool) error {
	return s.Keyring.Set(keyring.Item{
		Key:   deviceID,
		Data:  key,
		Label: fmt.Sprintf("oath-vault (%s)", deviceID),

		// specific Keychain settings
		KeychainNotTrustApplication: requireAuthentication,
	})
}

func (s *AccessKeyStore) Has(deviceID string) (bool, error) {
	keys, err := s.Keyring.Keys()
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == deviceID {
			return true, nil
		}
	}
	return false, nil
}

func (s *AccessKeyStore) Remove(deviceID string) error {
	return s.Keyring.Remove(deviceID)
}

// RemoveAll deletes every stored access key and reports how many went.
func (s *AccessKeyStore) RemoveAll() (n int, err error) {
	keys, err := s.Keyring.Keys()
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err = s.Keyring.Remove(k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
