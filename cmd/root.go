// aidlgen [path], aidlgen build [path]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/qobs-build/aidlgen/internal/builder"
	"github.com/qobs-build/aidlgen/internal/msg"
	"github.com/spf13/cobra"
)

var (
	flagCompiler  string
	flagJobs      int
	flagGenerator EnumValue = NewEnumValue(builder.GeneratorQobs, map[string]string{
		builder.GeneratorQobs:  "Run aidl directly, skipping up to date units (default)",
		builder.GeneratorNinja: "Generates a build.ninja file and runs ninja",
	})
)

func targetDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func newBuilder(args []string) *builder.Builder {
	b, err := builder.NewBuilderInDirectory(targetDir(args))
	if err != nil {
		msg.Fatal("%v", err)
	}
	if flagCompiler != "" {
		b.Compiler = flagCompiler
	}
	b.Jobs = flagJobs
	return b
}

func doBuild(cmd *cobra.Command, args []string) {
	b := newBuilder(args)
	if err := b.Build(cmd.Context(), flagGenerator.Value()); err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aidlgen [target path]",
	Short: "Generate C++ code from AIDL interfaces",
	Long:  `Resolve the aidl_library and cc_aidl_library targets declared in Aidl.toml files and run the aidl compiler for them.`,
	Args:  cobra.MinimumNArgs(1),
	Run:   doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [target path]",
	Short: "Generate code for the package",
	Long:  `Generate code for the package. If no target path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)

	// aidlgen build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().VarP(&flagGenerator, "gen", "g", "Generator to build with, one of "+flagGenerator.HelpString())
	cmd.RegisterFlagCompletionFunc("gen", flagGenerator.CompletionFunc())
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "Number of aidl processes to run at once (0 = number of CPUs)")
	cmd.Flags().StringVar(&flagCompiler, "aidl", "", "Path to the aidl compiler (defaults to $AIDL, then aidl on PATH)")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
