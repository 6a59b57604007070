package main

import "github.com/pegbridge/pegbridge/cmd/pegbridge/cmd"

func main() {
	cmd.Execute()
}
