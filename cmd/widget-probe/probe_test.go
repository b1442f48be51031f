package main

import (
	"path/filepath"
	"testing"

	"chatdesk-backend/internal/widget"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	opt := &Options{APIURL: " http://localhost:82/ ", WidgetKey: " wk "}
	opt.Complete()
	require.NoError(t, opt.Validate())
	assert.Equal(t, "http://localhost:82", opt.APIURL)
	assert.Equal(t, "wk", opt.WidgetKey)

	missingKey := &Options{APIURL: "http://localhost:82"}
	assert.Error(t, missingKey.Validate())

	negative := &Options{APIURL: "http://localhost:82", WidgetKey: "wk", Listen: -1}
	assert.Error(t, negative.Validate())
}

func TestOptionsConfigUsesIdentityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	opt := &Options{APIURL: "http://api", WidgetKey: "wk", IdentityFile: path}

	cfg := opt.config()
	require.Len(t, cfg.Layers, 1)
	assert.IsType(t, &widget.FileLayer{}, cfg.Layers[0])
	assert.Empty(t, cfg.Origin)

	assert.False(t, opt.wantsConversation())
	opt.Messages = []string{"hi"}
	assert.True(t, opt.wantsConversation())
}
