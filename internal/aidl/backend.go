package aidl

import (
	"slices"
	"strings"
)

// Backend selects the flavour of C++ code aidl generates (--lang).
type Backend string

const (
	BackendCpp Backend = "cpp"
	BackendNdk Backend = "ndk"

	DefaultBackend = BackendCpp
)

type backendPolicy struct {
	headerPrefix string // extra directory between the unit dir and the package dirs
	srcExt       string
	hdrExt       string
}

// ndk headers live under an extra "aidl/" directory so they can't collide
// with cpp headers for the same interface. Consumers include them as
// <aidl/pkg/path/IFoo.h>.
var backends = map[Backend]backendPolicy{
	BackendCpp: {headerPrefix: "", srcExt: "cpp", hdrExt: "h"},
	BackendNdk: {headerPrefix: "aidl", srcExt: "cpp", hdrExt: "h"},
}

// ParseBackend returns the backend named s. An empty string selects the
// default backend.
func ParseBackend(s string) (Backend, error) {
	if s == "" {
		return DefaultBackend, nil
	}
	b := Backend(s)
	if _, ok := backends[b]; !ok {
		return "", errorf(ErrUnsupportedBackend, "%q, known backends: %s", s, strings.Join(Backends(), ", "))
	}
	return b, nil
}

// Backends returns the names of all supported backends, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for b := range backends {
		names = append(names, string(b))
	}
	slices.Sort(names)
	return names
}

func (b Backend) policy() (backendPolicy, error) {
	p, ok := backends[b]
	if !ok {
		return backendPolicy{}, errorf(ErrUnsupportedBackend, "%q", string(b))
	}
	return p, nil
}

func (b Backend) String() string { return string(b) }
