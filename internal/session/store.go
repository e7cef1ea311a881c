package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/crypto"
)

// Store persists one credential as a JSON file. When a passphrase is set,
// cookie values are sealed and the salt is stored next to them.
type Store struct {
	path       string
	passphrase string
}

type storedCredential struct {
	Credential
	Salt string `json:"salt,omitempty"`
}

// NewStore creates a store at path, expanding a leading "~/".
func NewStore(path, passphrase string) (*Store, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &Store{path: path, passphrase: passphrase}, nil
}

// Path returns the credential file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the saved credential. It does not validate it.
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("reading credential: %w", err)
	}

	var stored storedCredential
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parsing credential: %w", err)
	}

	var sealer *crypto.Sealer
	if stored.Salt != "" {
		salt, err := base64.StdEncoding.DecodeString(stored.Salt)
		if err != nil {
			return nil, fmt.Errorf("decoding credential salt: %w", err)
		}
		sealer = crypto.NewSealer(s.passphrase, salt)
	}
	cookies, err := sealer.OpenMap(stored.Cookies)
	if err != nil {
		return nil, fmt.Errorf("opening credential cookies: %w", err)
	}

	cred := stored.Credential
	cred.Cookies = cookies
	if cred.Cookies == nil {
		cred.Cookies = map[string]string{}
	}
	return &cred, nil
}

// Save writes c, replacing any previous credential. The file is written
// under a temporary name and renamed into place.
func (s *Store) Save(c *Credential) error {
	stored := storedCredential{Credential: *c}

	if s.passphrase != "" {
		salt, err := crypto.NewSalt()
		if err != nil {
			return err
		}
		sealer := crypto.NewSealer(s.passphrase, salt)
		sealed, err := sealer.SealMap(c.Cookies)
		if err != nil {
			return fmt.Errorf("sealing credential cookies: %w", err)
		}
		stored.Cookies = sealed
		stored.Salt = sealer.Salt()
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing credential: %w", err)
	}
	return nil
}
