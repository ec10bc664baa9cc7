package theme

import (
	"fmt"
)

// Banner returns the command-line banner.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		"  ┌─┐ " + magenta + "THREADPROMO" + reset + " ┌─┐\n" +
		cyan + "  │▓│ ▄▄▄ board ─▶ gate ─▶ title ─▶ queue\n" + reset +
		cyan + "  │▓│ ▀▀▀ " + reset + yellow + "08:00 ☀  15:00 ☕\n" + reset +
		"  forum threads, scheduled for X\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
