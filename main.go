package main

import "github.com/Den107/gulp-plus-webpack/cmd"

func main() {
	cmd.Execute()
}
