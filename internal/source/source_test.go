package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress_Registry(t *testing.T) {
	t.Parallel()

	a := Address(Declaration{Name: "reviewer-agent"}, "/work")
	assert.Equal(t, KindRegistry, a.SourceType)
	assert.Equal(t, "registry:reviewer-agent", a.ID)
}

func TestAddress_RegistrySameNameMergesAcrossConstraints(t *testing.T) {
	t.Parallel()

	a1 := Address(Declaration{Name: "foo", Constraint: "1.2.0"}, "/work")
	a2 := Address(Declaration{Name: "foo", Constraint: "^1.0.0"}, "/work/sub")

	assert.Equal(t, a1.ID, a2.ID, "registry keys must be name-only so constraints merge into one node")
}

func TestAddress_Path(t *testing.T) {
	t.Parallel()

	a := Address(Declaration{Path: "../shared/agent"}, "/work/pkgA")
	assert.Equal(t, KindPath, a.SourceType)
	assert.Equal(t, "path:/work/shared/agent", a.ID)
}

func TestAddress_GitWithEmbeddedRef(t *testing.T) {
	t.Parallel()

	a := Address(Declaration{URL: "https://GitHub.com/Foo/Bar.git#v1.0.0", Path: "skills/x"}, "/work")
	assert.Equal(t, KindGit, a.SourceType)
	assert.Equal(t, "https://github.com/foo/bar", a.NormalizedURL)
	assert.Equal(t, "v1.0.0", a.Ref)
	assert.Equal(t, "git:https://github.com/foo/bar#v1.0.0:skills/x", a.ID)
}

func TestAddress_GitDefaultRef(t *testing.T) {
	t.Parallel()

	a := Address(Declaration{URL: "https://github.com/foo/bar"}, "/work")
	assert.Equal(t, "default", a.Ref)
	assert.Equal(t, "git:https://github.com/foo/bar#default:", a.ID)
}

func TestAddress_GitHubShorthand(t *testing.T) {
	t.Parallel()

	a := Address(Declaration{URL: "gh@foo/bar/skills/linter#main"}, "/work")
	assert.Equal(t, KindGit, a.SourceType)
	assert.Equal(t, "https://github.com/foo/bar", a.NormalizedURL)
	assert.Equal(t, "main", a.Ref)
	assert.Equal(t, "skills/linter", a.Subpath)
}

func TestAddress_GitAndPathTogetherMeansInRepoSubdir(t *testing.T) {
	t.Parallel()

	a := Address(Declaration{URL: "https://github.com/foo/bar", Path: "packages/agent-a"}, "/work")
	assert.Equal(t, "packages/agent-a", a.Subpath)
}
