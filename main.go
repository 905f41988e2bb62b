package main

import "github.com/kamusis/addonrepo/cmd"

func main() {
	cmd.Execute()
}
