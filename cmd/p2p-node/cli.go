package main

import (
    "flag"
    "fmt"
    "os"
)

// Options holds CLI options for the node.
type Options struct {
    ConfigPath string
    // DialAddress is the optional positional argument: a peer to dial at startup.
    DialAddress string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("p2p-node", flag.ExitOnError)
    fs.Usage = func() {
        fmt.Fprintf(fs.Output(), "usage: p2p-node [-config path] [dial-address]\n")
        fs.PrintDefaults()
    }
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    _ = fs.Parse(args)
    switch fs.NArg() {
    case 0:
    case 1:
        opts.DialAddress = fs.Arg(0)
    default:
        fs.Usage()
        os.Exit(2)
    }
    return opts
}
