package main

import "github.com/mythos-ai/mythos-core/cmd"

func main() {
	cmd.Execute()
}
