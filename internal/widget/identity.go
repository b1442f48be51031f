package widget

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

const (
	VisitorKey       = "chatdesk_visitor_id"
	sessionKeyPrefix = "chatdesk_session_"
)

func SessionKey(widgetKey string) string {
	return sessionKeyPrefix + widgetKey
}

// Layer is one independent key-value store the visitor identity lives in.
// Any layer may be cleared or fail on its own.
type Layer interface {
	Name() string
	Get(key string) (string, error)
	Set(key, value string) error
}

// Environment describes the device the fingerprint is derived from.
type Environment struct {
	UserAgent      string
	Language       string
	ScreenWidth    int
	ScreenHeight   int
	ColorDepth     int
	TimezoneOffset int
}

// Fingerprint hashes the environment. Collisions are acceptable: it only
// disambiguates freshly generated visitor ids.
func Fingerprint(env Environment) string {
	parts := []string{
		env.UserAgent,
		env.Language,
		strconv.Itoa(env.ScreenWidth) + "x" + strconv.Itoa(env.ScreenHeight),
		strconv.Itoa(env.ColorDepth),
		strconv.Itoa(env.TimezoneOffset),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:6])
}

// IdentityStore resolves values across ordered layers: the first non-empty
// layer wins and the winner is written back to every layer.
type IdentityStore struct {
	layers []Layer
	env    Environment
	now    func() time.Time
}

func NewIdentityStore(env Environment, layers ...Layer) *IdentityStore {
	if len(layers) == 0 {
		layers = []Layer{NewMemoryLayer("cookie"), NewMemoryLayer("local"), NewMemoryLayer("session")}
	}
	return &IdentityStore{layers: layers, env: env, now: time.Now}
}

// VisitorID returns the stored visitor id or mints a new one.
func (s *IdentityStore) VisitorID() string {
	if id := s.lookup(VisitorKey); id != "" {
		s.store(VisitorKey, id)
		return id
	}

	id := fmt.Sprintf("visitor_%d_%s_%s", s.now().UnixMilli(), Fingerprint(s.env), randomSuffix())
	s.store(VisitorKey, id)
	return id
}

func (s *IdentityStore) SessionToken(widgetKey string) string {
	key := SessionKey(widgetKey)
	token := s.lookup(key)
	if token != "" {
		s.store(key, token)
	}
	return token
}

func (s *IdentityStore) SaveSessionToken(widgetKey, token string) {
	s.store(SessionKey(widgetKey), token)
}

func (s *IdentityStore) lookup(key string) string {
	for _, layer := range s.layers {
		value, err := layer.Get(key)
		if err != nil {
			log.Debug().Err(err).Str("layer", layer.Name()).Str("key", key).Msg("identity layer read failed")
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

// store is best effort: a failing layer does not fail the identity.
func (s *IdentityStore) store(key, value string) {
	for _, layer := range s.layers {
		if current, err := layer.Get(key); err == nil && current == value {
			continue
		}
		if err := layer.Set(key, value); err != nil {
			log.Debug().Err(err).Str("layer", layer.Name()).Str("key", key).Msg("identity layer write failed")
		}
	}
}

func randomSuffix() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 9)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

var ErrLayerDisabled = errors.New("identity layer disabled")

// MemoryLayer is an in-process layer. Disable makes it fail like blocked
// browser storage.
type MemoryLayer struct {
	name     string
	mu       sync.Mutex
	values   map[string]string
	disabled bool
}

func NewMemoryLayer(name string) *MemoryLayer {
	return &MemoryLayer{name: name, values: make(map[string]string)}
}

func (m *MemoryLayer) Name() string { return m.name }

func (m *MemoryLayer) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return "", ErrLayerDisabled
	}
	return m.values[key], nil
}

func (m *MemoryLayer) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrLayerDisabled
	}
	m.values[key] = value
	return nil
}

func (m *MemoryLayer) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}

func (m *MemoryLayer) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = true
}

// FileLayer persists values as a JSON object so identities survive process
// restarts.
type FileLayer struct {
	path string
	mu   sync.Mutex
}

func NewFileLayer(path string) *FileLayer {
	return &FileLayer{path: path}
}

func (f *FileLayer) Name() string { return "file:" + f.path }

func (f *FileLayer) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.read()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (f *FileLayer) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileLayer) read() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return values, nil
}
