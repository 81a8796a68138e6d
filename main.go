// Command a11ycrawl audits a website for accessibility issues.
package main

import "github.com/JakeFAU/a11ycrawl/cmd"

func main() {
	cmd.Execute()
}
