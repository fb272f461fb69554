package main

import "github.com/vietddude/burnrelay/internal/cli"

func main() {
	cli.Execute()
}
