package aidl

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	proxyPrefix  = "Bp"
	nativePrefix = "Bn"
)

// Outputs are the files aidl writes for one source, relative to the directory
// that holds the unit directory.
type Outputs struct {
	Source  string
	Headers []string
	// HeaderDir is the directory all of Headers live in.
	HeaderDir string
}

// PredictOutputs computes where aidl will put the code it generates for src.
// It must agree exactly with aidl's own naming, since the build graph is
// declared before aidl runs and consumers #include the headers by path.
func PredictOutputs(src, includeRoot string, backend Backend, unit string) (Outputs, error) {
	policy, err := backend.policy()
	if err != nil {
		return Outputs{}, err
	}
	short, err := shortPath(src, includeRoot)
	if err != nil {
		return Outputs{}, err
	}

	dir := path.Dir(short)
	base := path.Base(short)
	stem := strings.TrimSuffix(base, path.Ext(base))

	hdrDir := path.Join(unit, policy.headerPrefix, dir)
	className := interfaceClassName(stem)

	return Outputs{
		Source: path.Join(unit, dir, stem+"."+policy.srcExt),
		Headers: []string{
			path.Join(hdrDir, stem+"."+policy.hdrExt),
			path.Join(hdrDir, proxyPrefix+className+"."+policy.hdrExt),
			path.Join(hdrDir, nativePrefix+className+"."+policy.hdrExt),
		},
		HeaderDir: hdrDir,
	}, nil
}

// interfaceClassName drops the leading I of interface names such as IFoo,
// which aidl does when naming the Bp/Bn classes.
func interfaceClassName(stem string) string {
	if len(stem) <= 2 || stem[0] != 'I' {
		return stem
	}
	next, _ := utf8.DecodeRuneInString(stem[1:])
	if !unicode.IsUpper(next) {
		return stem
	}
	return stem[1:]
}
