// 命令行入口，子命令见 internal/cli。
package main

import "kayblog/internal/cli"

func main() {
	cli.Execute()
}
