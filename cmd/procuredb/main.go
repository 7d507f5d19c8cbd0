package main

import "github.com/marshallshelly/procuredb/cmd/procuredb/commands"

func main() {
	commands.Execute()
}
