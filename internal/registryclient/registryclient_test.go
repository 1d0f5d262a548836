package registryclient

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestLoadIndex_ParsesPackagesByName(t *testing.T) {
	data := []byte(`
packages:
  - name: demo-skill
    kind: github
    owner: acme
    repo: demo-skill
    tagPrefix: v
  - name: demo-oci
    kind: oci
    image: ghcr.io/acme/demo-oci
`)

	entries, err := LoadIndex(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, EntryKindGitHub, entries["demo-skill"].Kind)
	assert.Equal(t, "acme", entries["demo-skill"].Owner)
	assert.Equal(t, EntryKindOCI, entries["demo-oci"].Kind)
	assert.Equal(t, "ghcr.io/acme/demo-oci", entries["demo-oci"].Image)
}

func TestLoadIndexFile_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
packages:
  - name: demo
    kind: github
    owner: acme
    repo: demo
`), 0o644))

	entries, err := LoadIndexFile(path)
	require.NoError(t, err)
	assert.Contains(t, entries, "demo")
}

func TestLoadIndexFile_MissingFileReturnsError(t *testing.T) {
	_, err := LoadIndexFile(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestClient_ListVersions_UnknownNameReturnsError(t *testing.T) {
	c := New(map[string]Entry{}, http.DefaultClient, nil, nil)
	_, err := c.ListVersions("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registry entry")
}

func TestClient_ListVersions_GitHubEntryListsReleases(t *testing.T) {
	entries := map[string]Entry{
		"demo": {Name: "demo", Kind: EntryKindGitHub, Owner: "acme", Repo: "demo", TagPrefix: "v"},
	}
	httpClient := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`[{"tag_name":"v1.2.0"},{"tag_name":"v1.1.0"}]`)),
			}, nil
		}),
	}

	c := New(entries, httpClient, nil, nil)
	versions, err := c.ListVersions("demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.0", "1.1.0"}, versions)
}

func TestClient_ListVersions_CachesResult(t *testing.T) {
	calls := 0
	entries := map[string]Entry{
		"demo": {Name: "demo", Kind: EntryKindGitHub, Owner: "acme", Repo: "demo"},
	}
	httpClient := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`[{"tag_name":"1.0.0"}]`)),
			}, nil
		}),
	}

	c := New(entries, httpClient, nil, nil)
	_, err := c.ListVersions("demo")
	require.NoError(t, err)
	_, err = c.LocalVersions(context.Background(), "demo")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestClient_ResolveRegistry_UnknownOCIPullerReturnsError(t *testing.T) {
	entries := map[string]Entry{
		"demo": {Name: "demo", Kind: EntryKindOCI, Image: "ghcr.io/acme/demo"},
	}
	c := New(entries, http.DefaultClient, nil, nil)
	_, err := c.ResolveRegistry(context.Background(), "demo", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no OCI puller configured")
}
