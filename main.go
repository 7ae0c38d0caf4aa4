package main

import "github.com/qobs-build/aidlgen/cmd"

func main() {
	cmd.Execute()
}
