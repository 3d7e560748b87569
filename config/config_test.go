package config

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capone-project/capone/identity"
)

func genHexKeys(t *testing.T) (string, string) {
	t.Helper()
	pair, err := identity.GenerateSignKeyPair(nil)
	require.NoError(t, err)
	return hex.EncodeToString(pair.Public[:]), hex.EncodeToString(pair.Secret[:])
}

func TestParseMinimalCore(t *testing.T) {
	pub, _ := genHexKeys(t)
	src := "[core]\npublic_key=" + pub + "\n"
	cfg, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.False(t, cfg.Core.HasSecret)
}

func TestParseFullConfig(t *testing.T) {
	pub, sec := genHexKeys(t)
	src := "" +
		"[core]\n" +
		"public_key=" + pub + "\n" +
		"secret_key=" + sec + "\n" +
		"name=mydaemon\n" +
		"\n" +
		"[service]\n" +
		"name=shell\n" +
		"type=shell-exec\n" +
		"location=localhost\n" +
		"port=9001\n" +
		"\n" +
		"[service]\n" +
		"name=screen\n" +
		"type=screen-share\n" +
		"port=9002\n" +
		"\n" +
		"[xpra]\n" +
		"port=14500\n" +
		"\n" +
		"[admin]\n" +
		"port=8080\n"

	cfg, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.True(t, cfg.Core.HasSecret)
	assert.Equal(t, "mydaemon", cfg.Core.Name)
	require.Len(t, cfg.Services, 2)
	assert.Equal(t, "shell", cfg.Services[0].Name)
	assert.Equal(t, "9001", cfg.Services[0].Port)
	assert.Equal(t, "screen", cfg.Services[1].Name)
	assert.Equal(t, "14500", cfg.Xpra.Port)
	assert.Equal(t, "8080", cfg.Admin.Port)
}

func TestParseRejectsMissingCoreSection(t *testing.T) {
	_, err := Parse(strings.NewReader("[xpra]\nport=1\n"))
	assert.Error(t, err)
}

func TestParseRejectsMissingPublicKey(t *testing.T) {
	_, err := Parse(strings.NewReader("[core]\nname=x\n"))
	assert.Error(t, err)
}

func TestParseRejectsUnknownSection(t *testing.T) {
	pub, _ := genHexKeys(t)
	_, err := Parse(strings.NewReader("[core]\npublic_key=" + pub + "\n[bogus]\nkey=value\n"))
	assert.Error(t, err)
}

func TestParseRejectsServiceMissingFields(t *testing.T) {
	pub, _ := genHexKeys(t)
	src := "[core]\npublic_key=" + pub + "\n[service]\nname=incomplete\n"
	_, err := Parse(strings.NewReader(src))
	assert.Error(t, err)
}

func TestParseRejectsNonNumericPort(t *testing.T) {
	pub, _ := genHexKeys(t)
	src := "[core]\npublic_key=" + pub + "\n[service]\nname=x\ntype=x\nport=notanumber\n"
	_, err := Parse(strings.NewReader(src))
	assert.Error(t, err)
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	pub, _ := genHexKeys(t)
	src := "# a comment\n; another\n\n[core]\npublic_key=" + pub + "\n"
	_, err := Parse(strings.NewReader(src))
	assert.NoError(t, err)
}
