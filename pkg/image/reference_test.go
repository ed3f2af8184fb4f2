package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	const hash = "1234abcd1234abcd1234abcd1234abcd"

	tests := []struct {
		name       string
		raw        string
		registry   string
		repository string
		version    Version
	}{
		{"bare name", "rust", "", "rust", Any()},
		{"tag", "myname:latest", "", "myname", Tag("latest")},
		{"namespaced", "repo/my-name:1.0", "", "repo/my-name", Tag("1.0")},
		{"registry with port", "registry.foo.com:1234/my-name:1.0", "registry.foo.com:1234", "my-name", Tag("1.0")},
		{"registry", "registry.foo.com/my-name:1.0", "registry.foo.com", "my-name", Tag("1.0")},
		{"registry nested repo", "registry.foo.com:1234/repo_here/my-name:1.0", "registry.foo.com:1234", "repo_here/my-name", Tag("1.0")},
		{"host example", "host.example.com:1234/repo/name:1.0", "host.example.com:1234", "repo/name", Tag("1.0")},
		{"digest nested", "registry.foo.com:1234/repo-here/my-name@sha256:" + hash, "registry.foo.com:1234", "repo-here/my-name", Digest(hash)},
		{"digest", "registry.foo.com:1234/my-name@sha256:" + hash, "registry.foo.com:1234", "my-name", Digest(hash)},
		{"digest no registry", "repo/name@sha256:" + hash, "", "repo/name", Digest(hash)},
		{"ip registry", "1.2.3.4/my-name:1.0", "1.2.3.4", "my-name", Tag("1.0")},
		{"ip registry with port", "1.2.3.4:1234/my-name:1.0", "1.2.3.4:1234", "my-name", Tag("1.0")},
		{"ip registry nested", "1.2.3.4/repo-here/my-name:1.0", "1.2.3.4", "repo-here/my-name", Tag("1.0")},
		{"localhost", "localhost/my-name", "localhost", "my-name", Any()},
		{"localhost with port", "localhost:5000/my-name:dev", "localhost:5000", "my-name", Tag("dev")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, ref.Raw)
			assert.Equal(t, tt.registry, ref.Registry)
			assert.Equal(t, tt.repository, ref.Repository)
			assert.Equal(t, tt.version, ref.Version)
			assert.Nil(t, ref.Build)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr error
		message string
	}{
		{"rust@invalid", ErrInvalidRepository, "rust@invalid"},
		{"repo:rust:invalid", ErrInvalidVersion, "invalid tag version: rust:invalid"},
		{"repo@sha256:xyz", ErrInvalidVersion, "invalid sha256 hash version: xyz"},
		{"repo@sha256:abcd", ErrInvalidVersion, "invalid sha256 hash version"},
		{"repo:-bad", ErrInvalidVersion, "invalid tag version"},
		{":1.0", ErrInvalidRepository, "invalid repository name"},
		{":latest", ErrInvalidRepository, "invalid repository name"},
		{"", ErrInvalidRepository, "invalid repository name"},
		{"registry.example.com:5000/", ErrInvalidRepository, "invalid repository name"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParse_TagLengthLimit(t *testing.T) {
	long := make([]byte, 128)
	for i := range long {
		long[i] = 'a'
	}

	_, err := Parse("repo:" + string(long))
	require.NoError(t, err)

	_, err = Parse("repo:" + string(long) + "a")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("rust@invalid") })
	assert.NotPanics(t, func() { MustParse("rust") })
}

func TestReference_Names(t *testing.T) {
	ref := MustParse("registry.foo.com:1234/repo/name:1.0")
	assert.Equal(t, "registry.foo.com:1234/repo/name:1.0", ref.String())
	assert.Equal(t, "registry.foo.com:1234/repo/name", ref.Name())
	assert.Equal(t, "registry.foo.com:1234/repo/name:1.0", ref.LocalFilter())

	bare := MustParse("postgres")
	assert.Equal(t, "postgres", bare.LocalFilter())
	assert.Equal(t, "any", bare.Version.Kind.String())
}

func TestReference_WithBuild(t *testing.T) {
	ref := MustParse("local/app:test")
	built := ref.WithBuild("./testdata", "")

	assert.False(t, ref.NeedsBuild(), "original reference must be untouched")
	require.True(t, built.NeedsBuild())
	assert.Equal(t, "./testdata", built.Build.ContextDir)
	assert.Equal(t, "Dockerfile", built.Build.Dockerfile)
	assert.Equal(t, ref.Raw, built.Raw)
}
