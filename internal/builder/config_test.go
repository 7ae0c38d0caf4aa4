package builder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linuxEnv(basedir string) ConfigEnv {
	return ConfigEnv{
		TargetOS:   "linux",
		TargetArch: "arm64",
		Environ:    map[string]string{"HAL_FLAVOR": "vendor"},
		basedir:    basedir,
	}
}

const halManifest = `
[package]
name = "hal"
description = "HAL for {{ target_os }}/{{ target_arch }}"
build = 'target_os != "windows"'

[dependencies]
common = "../common"

[dependencies.'target_os == "windows"']
winonly = "gh:example/winonly"

[aidl_library.hal_interfaces]
srcs = ["aidl/**/*.aidl"]
strip_import_prefix = "aidl"
deps = ["common:types"]
flags = ["--structured"]

[aidl_library.hal_interfaces.'target_os == "linux"']
srcs = ["aidl_linux/**/*.aidl"]
flags = ["--flavor={{ environ.HAL_FLAVOR }}"]

[aidl_library.hal_interfaces.'target_arch == "amd64"']
flags = ["--amd64"]

[cc_aidl_library.hal_cpp]
deps = [":hal_interfaces"]
lang = "ndk"
min_sdk_version = 30

[cc_aidl_library.hal_current]
deps = ["hal_interfaces"]
min_sdk_version = "current"
flags = ["-Weverything"]
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(halManifest), linuxEnv(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "hal", cfg.Package.Name)
	assert.Equal(t, "HAL for linux/arm64", cfg.Package.Description)
	assert.Equal(t, `target_os != "windows"`, cfg.Package.Build)
	assert.Equal(t, map[string]string{"common": "../common"}, cfg.Dependencies)

	assert.Equal(t, []string{"hal_interfaces"}, cfg.LibraryNames())
	lib := cfg.Libraries["hal_interfaces"]
	assert.Equal(t, []string{"aidl/**/*.aidl", "aidl_linux/**/*.aidl"}, lib.Srcs)
	assert.Equal(t, "aidl", lib.StripImportPrefix)
	assert.Equal(t, []string{"common:types"}, lib.Deps)
	assert.Equal(t, []string{"--structured", "--flavor=vendor"}, lib.Flags)

	assert.Equal(t, []string{"hal_cpp", "hal_current"}, cfg.CcLibraryNames())
	cpp := cfg.CcLibraries["hal_cpp"]
	assert.Equal(t, "ndk", cpp.Lang)
	assert.Equal(t, []string{":hal_interfaces"}, cpp.Deps)
	assert.Equal(t, []string{"--min_sdk_version=30"}, cpp.UnitFlags())
	assert.Equal(t, []string{"--min_sdk_version=current", "-Weverything"}, cfg.CcLibraries["hal_current"].UnitFlags())
}

func TestParseConfigConditionalDependencies(t *testing.T) {
	env := linuxEnv(t.TempDir())
	env.TargetOS = "windows"
	cfg, err := ParseConfig(strings.NewReader(halManifest), env)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"common": "../common", "winonly": "gh:example/winonly"}, cfg.Dependencies)
	assert.Equal(t, []string{"aidl/**/*.aidl"}, cfg.Libraries["hal_interfaces"].Srcs)

	err = cfg.RunBuildScript(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned false")
	require.NoError(t, cfg.RunBuildScript(linuxEnv("")))
}

func TestParseConfigErrors(t *testing.T) {
	env := linuxEnv(t.TempDir())

	_, err := ParseConfig(strings.NewReader("[package]\ndescription = \"x\"\n"), env)
	assert.ErrorContains(t, err, "name is required")

	_, err = ParseConfig(strings.NewReader("[package\nname = \"x\"\n"), env)
	assert.Error(t, err)

	_, err = ParseConfig(strings.NewReader("[package]\nname = \"x\"\n[aidl_library]\nfoo = 1\n"), env)
	assert.ErrorContains(t, err, "aidl_library.foo")

	_, err = ParseConfig(strings.NewReader("[package]\nname = \"{{ nope( }}\"\n"), env)
	assert.ErrorContains(t, err, "failed to compile expression")
}

func TestParseConfigFromFileNamesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFilename)
	require.NoError(t, os.WriteFile(path, []byte("[package]\n"), 0o644))

	_, err := ParseConfigFromFile(path, linuxEnv(dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestConfigEnvPatchAndReadFile(t *testing.T) {
	dir := t.TempDir()
	env := linuxEnv(dir)
	orig := "interface IHal {\n    void ping();\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IHal.aidl"), []byte(orig), 0o644))

	dmp := diffmatchpatch.New()
	patched := strings.Replace(orig, "ping", "pong", 1)
	patch := dmp.PatchToText(dmp.PatchMake(orig, patched))

	applied, err := env.Patch("IHal.aidl", patch)
	require.NoError(t, err)
	assert.True(t, applied)

	content, err := env.ReadFile("IHal.aidl")
	require.NoError(t, err)
	assert.Equal(t, patched, content)

	_, err = env.ReadFile("../escape.aidl")
	assert.ErrorContains(t, err, "outside of package directory")
	_, err = env.Patch("../escape.aidl", patch)
	assert.Error(t, err)
}

func TestMergeStructs(t *testing.T) {
	dst := LibrarySection{Srcs: []string{"a"}, StripImportPrefix: "x"}
	require.NoError(t, mergeStructs(&dst, LibrarySection{Srcs: []string{"b"}, StripImportPrefix: "y"}))
	assert.Equal(t, []string{"a", "b"}, dst.Srcs)
	assert.Equal(t, "y", dst.StripImportPrefix)

	assert.Error(t, mergeStructs(dst, dst))
	assert.Error(t, mergeStructs(&dst, CcLibrarySection{}))
}

func TestBuildScriptCallsEnv(t *testing.T) {
	dir := t.TempDir()
	env := linuxEnv(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("14\n"), 0o644))

	manifest := "[package]\nname = \"hal\"\nbuild = 'ReadFile(\"VERSION\") == \"14\\n\" && target_os == \"linux\"'\n"
	cfg, err := ParseConfig(strings.NewReader(manifest), env)
	require.NoError(t, err)
	require.NoError(t, cfg.RunBuildScript(env))

	cfg.Package.Build = `ReadFile("MISSING") != ""`
	assert.ErrorContains(t, cfg.RunBuildScript(env), "failed to run build script")
}
