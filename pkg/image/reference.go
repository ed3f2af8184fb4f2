// Package image parses container image references into registry, repository
// and version parts.
package image

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidRepository = errors.New("invalid repository name")
	ErrInvalidVersion    = errors.New("invalid version")
)

var (
	tagPattern    = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]{0,127}$`)
	digestPattern = regexp.MustCompile(`^[0-9a-fA-F]{32,}$`)
)

const digestSeparator = "@sha256:"

// VersionKind selects how a reference pins the image version.
type VersionKind int

const (
	VersionAny VersionKind = iota
	VersionTag
	VersionDigest
)

func (k VersionKind) String() string {
	switch k {
	case VersionTag:
		return "tag"
	case VersionDigest:
		return "digest"
	default:
		return "any"
	}
}

// Version is the version selector of a reference. Value is empty for VersionAny.
type Version struct {
	Kind  VersionKind
	Value string
}

func Any() Version { return Version{Kind: VersionAny} }
func Tag(tag string) Version { return Version{Kind: VersionTag, Value: tag} }
func Digest(hash string) Version { return Version{Kind: VersionDigest, Value: hash} }

func (v Version) String() string {
	switch v.Kind {
	case VersionTag:
		return ":" + v.Value
	case VersionDigest:
		return digestSeparator + v.Value
	default:
		return ""
	}
}

func parseTag(tag string) (Version, error) {
	if !tagPattern.MatchString(tag) {
		return Version{}, fmt.Errorf("%w: invalid tag version: %s", ErrInvalidVersion, tag)
	}
	return Tag(tag), nil
}

func parseDigest(hash string) (Version, error) {
	if !digestPattern.MatchString(hash) {
		return Version{}, fmt.Errorf("%w: invalid sha256 hash version: %s", ErrInvalidVersion, hash)
	}
	return Digest(hash), nil
}

// BuildInstructions describe how to build an image locally instead of pulling it.
type BuildInstructions struct {
	ContextDir string
	Dockerfile string
}

// Reference is a parsed image reference. It is immutable; WithBuild returns a copy.
type Reference struct {
	Raw        string
	Registry   string
	Repository string
	Version    Version
	Build      *BuildInstructions
}

// Parse splits raw into registry, repository and version. Malformed
// repositories or versions are rejected, never defaulted.
func Parse(raw string) (Reference, error) {
	var registry string
	rest := raw
	if left, right, ok := strings.Cut(raw, "/"); ok && isRegistry(left) {
		registry, rest = left, right
	}

	repository := rest
	version := Any()
	var err error
	if repo, hash, ok := strings.Cut(rest, digestSeparator); ok {
		repository = repo
		if version, err = parseDigest(hash); err != nil {
			return Reference{}, err
		}
	} else if repo, tag, ok := strings.Cut(rest, ":"); ok {
		repository = repo
		if version, err = parseTag(tag); err != nil {
			return Reference{}, err
		}
	}

	if repository == "" || strings.ContainsAny(repository, "@:") {
		return Reference{}, fmt.Errorf("%w: %s", ErrInvalidRepository, repository)
	}

	return Reference{
		Raw:        raw,
		Registry:   registry,
		Repository: repository,
		Version:    version,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for presets and tests.
func MustParse(raw string) Reference {
	ref, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("image: parse %q: %v", raw, err))
	}
	return ref
}

func isRegistry(segment string) bool {
	return strings.ContainsAny(segment, ".:") || strings.HasPrefix(segment, "localhost")
}

// String returns the reference exactly as it was given to Parse.
func (r Reference) String() string {
	return r.Raw
}

// Name is the registry-qualified repository without a version.
func (r Reference) Name() string {
	if r.Registry == "" {
		return r.Repository
	}
	return r.Registry + "/" + r.Repository
}

// LocalFilter returns the reference used to look the image up in the local
// image store. VersionAny matches every tag of the repository.
func (r Reference) LocalFilter() string {
	switch r.Version.Kind {
	case VersionTag:
		return r.Name() + ":" + r.Version.Value
	case VersionDigest:
		return r.Name() + digestSeparator + r.Version.Value
	default:
		return r.Name()
	}
}

// WithBuild returns a copy of r that is built from contextDir instead of pulled.
// An empty dockerfile means "Dockerfile" inside contextDir.
func (r Reference) WithBuild(contextDir, dockerfile string) Reference {
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	r.Build = &BuildInstructions{ContextDir: contextDir, Dockerfile: dockerfile}
	return r
}

// NeedsBuild reports whether the image has build instructions attached.
func (r Reference) NeedsBuild() bool {
	return r.Build != nil
}
