package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ___                              _       
 |_ _|_ __ ___  _ __   __ _  __ _| |_ ___ 
  | || '__/ _ \| '_ \ / _` + "`" + ` |/ _` + "`" + ` | __/ _ \
  | || | | (_) | | | | (_| | (_| | ||  __/
 |___|_|  \___/|_| |_|\__, |\__,_|\__\___|
                      |___/               
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Authentication Server - Version %s\x1b[0m\n\n", Version)
}
