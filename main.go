package main

import "github.com/courtdata/results-ingest/cmd"

func main() {
	cmd.Execute()
}
