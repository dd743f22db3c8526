package main

import "github.com/dostenterprises/socketlink/internal/cmd"

func main() {
	cmd.Execute()
}
