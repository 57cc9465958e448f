package main

import "github.com/goplus/llar-glib/cmd/llar-glib/internal"

func main() {
	internal.Execute()
}
