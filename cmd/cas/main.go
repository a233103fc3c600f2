// Command cas is the CLI entry point for the content-addressed
// artifact store.
package main

import "github.com/javanhut/ivaldi-cas/cli"

func main() {
	cli.Execute()
}
