package p2p

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/natefinch/atomic"
)

// IdentityFile is the name of the file the node identity is stored in.
const IdentityFile = "identity.json"

type identityInfo struct {
	Key []byte
	ID  peer.ID // this is needed only to simplify integration with some testing tools
}

// LoadOrCreateIdentity loads the node key from the identity file in dir, generating
// and storing a new ed25519 key if the file doesn't exist.
func LoadOrCreateIdentity(dir string) (crypto.PrivKey, error) {
	path := filepath.Join(dir, IdentityFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return decodeIdentity(path, data)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read identity from %s: %w", path, err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := saveIdentity(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

func decodeIdentity(path string, data []byte) (crypto.PrivKey, error) {
	var info identityInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal identity from %s: %w", path, err)
	}
	key, err := crypto.UnmarshalPrivateKey(info.Key)
	if err != nil {
		return nil, fmt.Errorf("unmarshal private key from %s: %w", path, err)
	}
	id, err := peer.IDFromPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}
	if info.ID != "" && info.ID != id {
		return nil, fmt.Errorf("identity in %s doesn't match its key: %s != %s", path, info.ID, id)
	}
	return key, nil
}

func saveIdentity(path string, key crypto.PrivKey) error {
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	id, err := peer.IDFromPrivateKey(key)
	if err != nil {
		return fmt.Errorf("derive peer id: %w", err)
	}
	data, err := json.Marshal(identityInfo{Key: raw, ID: id})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write identity to %s: %w", path, err)
	}
	return nil
}
