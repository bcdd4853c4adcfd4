package main

import "github.com/agentic-research/filtertree/cmd"

func main() {
	cmd.Execute()
}
