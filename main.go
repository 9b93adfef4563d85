/*
Copyright © 2025 The genqueue authors
*/
package main

import "genqueue/cmd"

func main() {
	cmd.Execute()
}
