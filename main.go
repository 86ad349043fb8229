package main

import "github.com/jesspatton/testexplorer/cmd"

// main is the entry point of the application.
func main() {
	cmd.Execute()
}
