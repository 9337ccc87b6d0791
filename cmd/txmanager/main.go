package main

import "github.com/vietddude/txmanager/internal/cli"

func main() {
	cli.Execute()
}
