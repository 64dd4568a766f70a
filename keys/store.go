package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps attester seeds on the local filesystem:
//
//	<dir>/<name>/root.key
//	<dir>/<name>/roles/<role>.key
//
// Each file holds one line "<alg> <hex seed>". A line with only the hex seed
// is read as ed25519.
//
// EXPERIMENTAL: this storage surface may change in MINOR releases.
type KeyStore struct {
	Directory string
}

// KeyEntry describes a stored root key and the role keys derived from it.
type KeyEntry struct {
	Name  string
	Alg   string
	Roles []RoleKey
}

type RoleKey struct {
	Role string
	Alg  string
}

// SignerRef selects a signing key. The first of SeedHex, KeyFile or Name
// that is set wins. Alg names the algorithm for SeedHex; for stored keys it
// is optional and, when set, must match the stored algorithm.
type SignerRef struct {
	SeedHex string
	KeyFile string
	Name    string
	Role    string
	Alg     string
}

// ErrNoSigner is returned when a SignerRef selects nothing.
var ErrNoSigner = errors.New("keys: no signer provided")

func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "rangeproof", "keys"), nil
}

// OpenKeyStore returns a store rooted at dir, or at DefaultDirectory when
// dir is empty. Nothing is created until a key is written.
func OpenKeyStore(dir string) (*KeyStore, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDirectory(); err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: dir}, nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Directory, name, "root.key")
}

func (ks *KeyStore) rolePath(name, role string) string {
	return filepath.Join(ks.Directory, name, "roles", role+".key")
}

func CheckKeyName(name string) error { return checkLabel("key name", name) }

func CheckRole(role string) error { return checkLabel("role", role) }

// checkLabel keeps names usable as single path elements.
func checkLabel(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("invalid character %q in %s", c, what)
		}
	}
	return nil
}

// ParseSeedHex decodes a SeedSize seed, with or without a 0x prefix.
func ParseSeedHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(b))
	}
	return b, nil
}

type storedKey struct {
	alg  string
	seed []byte
}

func (k storedKey) signer() (Signer, error) { return NewSigner(k.alg, k.seed) }

func writeKey(path string, k storedKey, overwrite bool) error {
	if _, err := NewSigner(k.alg, k.seed); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s %s\n", k.alg, hex.EncodeToString(k.seed)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readKey(path string) (storedKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return storedKey{}, err
	}
	fields := strings.Fields(string(b))
	k := storedKey{alg: AlgEd25519}
	switch len(fields) {
	case 1:
	case 2:
		k.alg = fields[0]
	default:
		return storedKey{}, fmt.Errorf("%s: expected \"<alg> <hex seed>\"", path)
	}
	if k.seed, err = ParseSeedHex(fields[len(fields)-1]); err != nil {
		return storedKey{}, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

func (ks *KeyStore) read(name, role string) (storedKey, error) {
	if err := CheckKeyName(name); err != nil {
		return storedKey{}, err
	}
	if role == "" {
		return readKey(ks.rootPath(name))
	}
	if err := CheckRole(role); err != nil {
		return storedKey{}, err
	}
	return readKey(ks.rolePath(name, role))
}

func publicKey(k storedKey) (string, error) { return PublicKeyFromSeed(k.alg, k.seed) }

// InitializeRootKey stores seed as the alg root key of name and returns the
// encoded public key and the file written.
func (ks *KeyStore) InitializeRootKey(name, alg string, seed []byte, overwrite bool) (pub, path string, err error) {
	if err := CheckKeyName(name); err != nil {
		return "", "", err
	}
	k := storedKey{alg: alg, seed: seed}
	path = ks.rootPath(name)
	if err := writeKey(path, k, overwrite); err != nil {
		return "", "", err
	}
	pub, err = publicKey(k)
	return pub, path, err
}

// DeriveKeyFromRole derives and stores the role key of root key from. An
// empty alg reuses the root key's algorithm.
func (ks *KeyStore) DeriveKeyFromRole(from, role, alg string, overwrite bool) (pub, path string, err error) {
	if err := CheckRole(role); err != nil {
		return "", "", err
	}
	root, err := ks.read(from, "")
	if err != nil {
		return "", "", err
	}
	seed, err := DeriveRoleSeed(root.seed, role)
	if err != nil {
		return "", "", err
	}
	if alg == "" {
		alg = root.alg
	}
	k := storedKey{alg: alg, seed: seed}
	path = ks.rolePath(from, role)
	if err := writeKey(path, k, overwrite); err != nil {
		return "", "", err
	}
	pub, err = publicKey(k)
	return pub, path, err
}

// ExportKey returns the public key of a stored root (role == "") or role key.
func (ks *KeyStore) ExportKey(name, role string) (string, error) {
	k, err := ks.read(name, role)
	if err != nil {
		return "", err
	}
	return publicKey(k)
}

// Signer resolves ref to a signer.
func (ks *KeyStore) Signer(ref SignerRef) (Signer, error) {
	var k storedKey
	var err error
	switch {
	case ref.SeedHex != "":
		k.alg = ref.Alg
		if k.alg == "" {
			k.alg = AlgEd25519
		}
		k.seed, err = ParseSeedHex(ref.SeedHex)
		if err != nil {
			return nil, err
		}
		return k.signer()
	case ref.KeyFile != "":
		k, err = readKey(ref.KeyFile)
	case ref.Name != "":
		k, err = ks.read(ref.Name, ref.Role)
	default:
		return nil, ErrNoSigner
	}
	if err != nil {
		return nil, err
	}
	if ref.Alg != "" && ref.Alg != k.alg {
		return nil, fmt.Errorf("keys: stored key is %s, not %s", k.alg, ref.Alg)
	}
	return k.signer()
}

// ListKeys lists root keys by name with their role keys. Files that do not
// parse are skipped.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	dirs, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []KeyEntry
	for _, d := range dirs {
		if !d.IsDir() || CheckKeyName(d.Name()) != nil {
			continue
		}
		root, err := readKey(ks.rootPath(d.Name()))
		if err != nil {
			continue
		}
		e := KeyEntry{Name: d.Name(), Alg: root.alg}
		files, _ := os.ReadDir(filepath.Join(ks.Directory, d.Name(), "roles"))
		for _, f := range files {
			role, ok := strings.CutSuffix(f.Name(), ".key")
			if f.IsDir() || !ok {
				continue
			}
			if k, err := readKey(ks.rolePath(d.Name(), role)); err == nil {
				e.Roles = append(e.Roles, RoleKey{Role: role, Alg: k.alg})
			}
		}
		sort.Slice(e.Roles, func(i, j int) bool { return e.Roles[i].Role < e.Roles[j].Role })
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
