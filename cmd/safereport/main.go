// Package main provides the safereport CLI for submitting reports and
// working an organization inbox.
package main

import "github.com/mscno/safereport/cmd/safereport/commands"

func main() {
	commands.Execute(Version)
}
