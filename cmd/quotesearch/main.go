package main

import "quotesearch/internal/cli"

func main() {
	cli.Execute()
}
