package main

import "ReadingFM/cmd"

func main() {
	cmd.Execute()
}
