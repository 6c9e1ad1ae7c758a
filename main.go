package main

import "github.com/dmarch/polymarket-trader/cmd"

func main() {
	cmd.Execute()
}
