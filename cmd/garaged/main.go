package main

import "github.com/icodeuridevice/AICarServiceAgent/cmd"

func main() {
	cmd.Execute()
}
