// Command bfdctl is the operator CLI for the bfdd daemon.
package main

import "github.com/dantte-lp/bfdd/cmd/gobfdctl/commands"

func main() {
	commands.Execute()
}
