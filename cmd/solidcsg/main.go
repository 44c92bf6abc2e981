// Command solidcsg evaluates scene scripts: it builds the scene tree,
// optionally flattens it, evaluates the geometry and reports the result.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
