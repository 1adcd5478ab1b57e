package main

import "dgtwallet/cmd"

func main() {
	cmd.Execute()
}
