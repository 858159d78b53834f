package main

import "github.com/docuchat/docuchat/cmd"

func main() {
	cmd.Execute()
}
