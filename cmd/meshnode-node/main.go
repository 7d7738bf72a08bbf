package main

import "os"

func main() {
    opts := ParseFlags(os.Args[1:])
    os.Exit(run(opts))
}
