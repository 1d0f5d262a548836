package ociregistry

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTar(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestExtractTar_WritesRegularFiles(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, map[string]string{
		"plugin.json":     `{"name":"demo"}`,
		"nested/skill.md": "# demo",
	})

	require.NoError(t, extractTar(buf, dest))

	data, err := os.ReadFile(filepath.Join(dest, "plugin.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"demo"}`, string(data))

	data, err = os.ReadFile(filepath.Join(dest, "nested", "skill.md"))
	require.NoError(t, err)
	assert.Equal(t, "# demo", string(data))
}

func TestExtractTar_RejectsPathTraversal(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, map[string]string{
		"../../etc/passwd": "pwned",
	})

	err := extractTar(buf, dest)
	assert.Error(t, err)
}

func TestSanitize_ReplacesNonAlphanumeric(t *testing.T) {
	assert.Equal(t, "ghcr_io_org_pkg_1_0_0", sanitize("ghcr.io/org/pkg@1.0.0"))
}
