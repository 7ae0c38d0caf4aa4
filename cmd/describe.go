// aidlgen describe [path]
package cmd

import (
	"encoding/json"
	"os"

	"github.com/qobs-build/aidlgen/internal/msg"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var flagFormat EnumValue = NewEnumValue("json", map[string]string{
	"json": "Print units as JSON (default)",
	"yaml": "Print units as YAML",
})

func doDescribe(cmd *cobra.Command, args []string) {
	b := newBuilder(args)
	graph, err := b.Resolve(cmd.Context())
	if err != nil {
		msg.Fatal("%v", err)
	}

	reports := graph.Describe()
	switch flagFormat.Value() {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		err = enc.Encode(reports)
		if err == nil {
			err = enc.Close()
		}
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(reports)
	}
	if err != nil {
		msg.Fatal("encode units: %v", err)
	}
}

var describeCmd = &cobra.Command{
	Use:   "describe [target path]",
	Short: "Print the code generation units of the package",
	Long:  `Resolve the package and print every unit's backend, generated files, include directories and aidl command line without running anything.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doDescribe,
}

func init() {
	// aidlgen describe subcommand
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().VarP(&flagFormat, "format", "f", "Output format, one of "+flagFormat.HelpString())
	describeCmd.RegisterFlagCompletionFunc("format", flagFormat.CompletionFunc())
	describeCmd.Flags().StringVar(&flagCompiler, "aidl", "", "Path to the aidl compiler shown in the command line")
}
