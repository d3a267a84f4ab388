package main

import "github.com/dmitrymomot/sessionstore/cmd/sessiongc/cmd"

func main() {
	cmd.Execute()
}
