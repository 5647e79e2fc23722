// Lab is the command line tool for fingerprinting, attesting, sweeping and
// benchmarking contract bytecode.
package main

import "github.com/ardanlabs/bytecodelab/app/tooling/lab/cmd"

func main() {
	cmd.Execute()
}
