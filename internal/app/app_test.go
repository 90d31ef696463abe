package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApplicationUnknownMode(t *testing.T) {
	_, err := NewApplication(Options{Mode: "proxy", ConfigPath: t.TempDir(), Silent: true})
	assert.Error(t, err)
}

func TestNewApplicationBridgeWithDefaults(t *testing.T) {
	app, err := NewApplication(Options{Mode: ModeBridge, ConfigPath: t.TempDir(), Silent: true})
	require.NoError(t, err)
	assert.NotNil(t, app.server)
}

func TestNewApplicationGatewayRequiresAuthConfig(t *testing.T) {
	// Defaults leave external URL, IdP, and admin secret unset; the gateway
	// must refuse to assemble.
	_, err := NewApplication(Options{Mode: ModeGateway, ConfigPath: t.TempDir(), Silent: true})
	assert.Error(t, err)
}

func TestNewApplicationGatewayWithFullConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
gateway:
  externalUrl: https://notes.example.com
  adminSecret: secret
  idp:
    name: google
    authUrl: https://accounts.google.com/o/oauth2/v2/auth
    tokenUrl: https://oauth2.googleapis.com/token
    userInfoUrl: https://openidconnect.googleapis.com/v1/userinfo
    clientId: client
    clientSecret: secret
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	app, err := NewApplication(Options{Mode: ModeGateway, ConfigPath: dir, Silent: true})
	require.NoError(t, err)
	assert.NotNil(t, app.server)
}
