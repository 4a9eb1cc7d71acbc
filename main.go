package main

import "github.com/audiolibrelab/midicapture/cmd"

func main() {
	cmd.Execute()
}
