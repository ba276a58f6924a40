package keys

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// LoadKeyRing reads an armored or binary keyring file
func LoadKeyRing(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadKeyRing(data)
}

// VerifyDetached checks a detached signature (armored or binary) of data
// against keyring and returns the signing entity
func VerifyDetached(keyring openpgp.EntityList, data, signature []byte) (*openpgp.Entity, error) {
	var (
		signer *openpgp.Entity
		err    error
	)
	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN")) {
		signer, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}
	return signer, nil
}
