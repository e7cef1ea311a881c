package main

import "github.com/pfrederiksen/partyfinder/internal/cli"

func main() {
	cli.Execute()
}
