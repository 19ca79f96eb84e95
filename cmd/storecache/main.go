package main

import "github.com/goliatone/go-store-cache/cmd/storecache/cmd"

func main() {
	cmd.Execute()
}
