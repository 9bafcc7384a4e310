package main

import "github.com/kozaktomas/image-query/cmd"

func main() {
	cmd.Execute()
}
