package main

import "github.com/ngld/mix/cmd"

func main() {
	cmd.Execute()
}
