// aidlgen init [name]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/aidlgen/internal/builder"
	"github.com/qobs-build/aidlgen/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "aidlgen"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// initIn initializes a package in an existing specified directory
func initIn(dir, name string, backend string) {
	// Aidl.toml
	writefile(`[package]
name = "`+name+`"
description = "AIDL interfaces of `+name+`"

[aidl_library.`+name+`_interfaces]
srcs = ["aidl/**/*.aidl"]
strip_import_prefix = "aidl"

[cc_aidl_library.`+name+`_cpp]
deps = [":`+name+`_interfaces"]
lang = "`+backend+`"

[dependencies]
`, dir, builder.ManifestFilename)

	mkdir(dir, "aidl", "com", "example")

	// aidl/com/example/IHello.aidl
	writefile(`package com.example;

interface IHello {
    String hello(String name);
}
`, dir, "aidl", "com", "example", "IHello.aidl")

	// .gitignore
	writefile(`build/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to generate code, or %s to see what would run.\n", color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" describe "+dir))
}

var flagBackend EnumValue = NewEnumValue("cpp", map[string]string{
	"cpp": "libbinder C++ backend",
	"ndk": "NDK (libbinder_ndk) backend",
})

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new package in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0], flagBackend.Value())
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new package in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]), flagBackend.Value())
	},
}

func init() {
	// aidlgen init subcommand
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().VarP(&flagBackend, "lang", "l", "Backend of the scaffolded cc_aidl_library, one of "+flagBackend.HelpString())

	// aidlgen new subcommand
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().VarP(&flagBackend, "lang", "l", "Backend of the scaffolded cc_aidl_library, one of "+flagBackend.HelpString())
}
