// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/pakload/pakload/cmd/pakload"

func main() {
	cmd.Execute()
}
