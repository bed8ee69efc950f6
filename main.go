package main

import "readit/cmd"

func main() {
	cmd.Execute()
}
