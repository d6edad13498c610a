package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchJSON = `[{"id": 42, "protocol": "xtz", "type": "message-sign-request",
  "payload": {"message": "%s", "publicKey": "edpk"}}]`

func writeBatch(t *testing.T, message string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(batchJSON, "%s", message, 1)), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestEncodeThenDecode(t *testing.T) {
	path := writeBatch(t, strings.Repeat("please sign ", 40))

	out, _, err := run(t, "", "encode", "-f", path, "--max-multi", "60", "--max-single", "200")
	require.NoError(t, err)

	var result services.EncodeResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "ur", result.Format)
	require.Greater(t, result.PartCount, 1)
	assert.True(t, strings.HasPrefix(result.SingleForm, "airgap-wallet://?ur="))

	out, _, err = run(t, strings.Join(result.Frames, "\n")+"\n", "decode")
	require.NoError(t, err)

	var msgs []proto.Message
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, uint32(42), msgs[0].ID)
	assert.Equal(t, proto.KindMessageSignRequest, msgs[0].Kind)
}

func TestEncodeLegacyFromStdin(t *testing.T) {
	stdin := strings.Replace(batchJSON, "%s", "hello", 1)
	out, _, err := run(t, stdin, "encode", "--format", "legacy", "--prefix", "airgap-vault")
	require.NoError(t, err)

	var result services.EncodeResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "legacy", result.Format)
	assert.True(t, strings.HasPrefix(result.SingleForm, "airgap-vault://?d="))

	out, _, err = run(t, result.SingleForm, "decode", "--transport", "deeplink")
	require.NoError(t, err)
	assert.Contains(t, out, `"hello"`)
}

func TestEncodeErrors(t *testing.T) {
	_, _, err := run(t, "not json", "encode")
	assert.Error(t, err)

	_, _, err = run(t, strings.Replace(batchJSON, "%s", "hi", 1), "encode", "--format", "xpub")
	assert.Error(t, err)
}

func TestEncodeAnimate(t *testing.T) {
	t.Setenv("AIRLINK_FRAMES_INTERVAL", "1ms")
	path := writeBatch(t, strings.Repeat("animate ", 30))

	out, _, err := run(t, "", "encode", "-f", path, "--max-multi", "60", "--max-single", "100", "--animate", "--loops", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "\033[H\033[2J")
	assert.Contains(t, out, "ur  frame 1")
}

func TestDecodeUnknownInput(t *testing.T) {
	_, stderr, err := run(t, "definitely not a frame\n", "decode", "--transport", "paste")
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown message")
}

func TestDecodeInvalidTransport(t *testing.T) {
	_, _, err := run(t, "x", "decode", "--transport", "fax")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	svgPath := filepath.Join(dir, "code.svg")
	pngPath := filepath.Join(dir, "code.png")

	out, _, err := run(t, "", "render", "--svg", svgPath, "--png", pngPath, "UR:BYTES/HDCXLKAHSSQZWFVSLOFZOXWKRE")
	require.NoError(t, err)
	assert.Contains(t, out, svgPath)

	svg, err := os.ReadFile(svgPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(svg, []byte("<svg")))

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	out, _, err = run(t, "", "render", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("link:\n  scheme: custom-app\n"), 0o600))

	stdin := strings.Replace(batchJSON, "%s", "hi", 1)
	out, _, err := run(t, stdin, "--config", path, "encode")
	require.NoError(t, err)
	assert.Contains(t, out, "custom-app://?ur=")

	_, _, err = run(t, stdin, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "encode")
	assert.Error(t, err)
}
