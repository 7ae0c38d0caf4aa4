package builder

import (
	"os"
	"os/exec"
)

// aidl is sometimes installed under the name of the backend it was built for
var commonAidlCompilers = []string{"aidl", "aidl-cpp"}

// findCompiler attempts to find the aidl compiler on the system
func findCompiler() string {
	if aidl := os.Getenv("AIDL"); aidl != "" {
		return aidl
	}

	for _, compiler := range commonAidlCompilers {
		path, err := exec.LookPath(compiler)
		if err == nil {
			return path
		}
	}

	return ""
}
