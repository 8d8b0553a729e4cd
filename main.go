package main

import "github.com/pipeless-go/pipeless/cmd/pipeless"

func main() {
	pipeless.Execute()
}
