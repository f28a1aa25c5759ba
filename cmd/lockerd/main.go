package main

import "smart-locker-backend/internal/cli"

func main() {
	cli.Execute()
}
