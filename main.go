/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package main

import "ibkr-paper-gateway/cmd"

func main() {
	cmd.Execute()
}
