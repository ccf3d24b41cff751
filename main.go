package main

import "parking-bot/cmd"

func main() {
	cmd.Run()
}
