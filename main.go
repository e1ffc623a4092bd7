package main

import "github.com/derickschaefer/stationcube/cmd"

func main() {
	cmd.Execute()
}
