package main

import "github.com/lookbook-shop/client-go/cmd/lookbook-probe/cmd"

func main() {
	cmd.Execute()
}
