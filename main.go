package main

import "github.com/planvane/planvane/cmd"

func main() {
	cmd.Execute()
}
