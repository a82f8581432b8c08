// cmd/crunch/main.go
//
// Entry point for the crunch CLI. Commands are registered on rootCmd from
// their own files.

package main

func main() {
	Execute()
}
