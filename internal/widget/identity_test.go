package widget

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnv = Environment{
	UserAgent:      "Mozilla/5.0 (X11; Linux x86_64)",
	Language:       "en-US",
	ScreenWidth:    1920,
	ScreenHeight:   1080,
	ColorDepth:     24,
	TimezoneOffset: -120,
}

func TestVisitorIDIsStableAndShaped(t *testing.T) {
	store := NewIdentityStore(testEnv)
	store.now = func() time.Time { return time.UnixMilli(1717232400000) }

	first := store.VisitorID()
	assert.Regexp(t, regexp.MustCompile(`^visitor_1717232400000_[0-9a-f]{12}_[0-9a-z]{9}$`), first)
	assert.Contains(t, first, Fingerprint(testEnv))
	assert.Equal(t, first, store.VisitorID())
}

func TestFingerprintDependsOnEnvironment(t *testing.T) {
	other := testEnv
	other.TimezoneOffset = 60

	assert.Equal(t, Fingerprint(testEnv), Fingerprint(testEnv))
	assert.NotEqual(t, Fingerprint(testEnv), Fingerprint(other))
}

func TestIdentityLayersConverge(t *testing.T) {
	cookie := NewMemoryLayer("cookie")
	local := NewMemoryLayer("local")
	tab := NewMemoryLayer("session")
	require.NoError(t, tab.Set(VisitorKey, "visitor_tab"))

	store := NewIdentityStore(testEnv, cookie, local, tab)
	assert.Equal(t, "visitor_tab", store.VisitorID())

	for _, layer := range []*MemoryLayer{cookie, local, tab} {
		value, err := layer.Get(VisitorKey)
		require.NoError(t, err)
		assert.Equal(t, "visitor_tab", value, layer.Name())
	}

	cookie.Clear()
	local.Clear()
	assert.Equal(t, "visitor_tab", store.VisitorID())
	value, _ := cookie.Get(VisitorKey)
	assert.Equal(t, "visitor_tab", value)
}

func TestIdentityPrefersEarlierLayers(t *testing.T) {
	cookie := NewMemoryLayer("cookie")
	local := NewMemoryLayer("local")
	require.NoError(t, cookie.Set(VisitorKey, "from-cookie"))
	require.NoError(t, local.Set(VisitorKey, "from-local"))

	store := NewIdentityStore(testEnv, cookie, local)
	assert.Equal(t, "from-cookie", store.VisitorID())
	value, _ := local.Get(VisitorKey)
	assert.Equal(t, "from-cookie", value)
}

func TestIdentitySurvivesDisabledLayers(t *testing.T) {
	broken := NewMemoryLayer("cookie")
	broken.Disable()
	local := NewMemoryLayer("local")

	store := NewIdentityStore(testEnv, broken, local)
	id := store.VisitorID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, store.VisitorID())

	allBroken := NewMemoryLayer("only")
	allBroken.Disable()
	assert.NotEmpty(t, NewIdentityStore(testEnv, allBroken).VisitorID())
}

func TestSessionTokensAreScopedByWidgetKey(t *testing.T) {
	store := NewIdentityStore(testEnv)
	store.SaveSessionToken("wk-a", "token-a")

	assert.Equal(t, "token-a", store.SessionToken("wk-a"))
	assert.Empty(t, store.SessionToken("wk-b"))
	assert.Equal(t, "chatdesk_session_wk-a", SessionKey("wk-a"))
}

func TestFileLayerPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity", "store.json")

	first := NewFileLayer(path)
	value, err := first.Get(VisitorKey)
	require.NoError(t, err)
	assert.Empty(t, value)
	require.NoError(t, first.Set(VisitorKey, "visitor_file"))

	second := NewFileLayer(path)
	value, err = second.Get(VisitorKey)
	require.NoError(t, err)
	assert.Equal(t, "visitor_file", value)
}
