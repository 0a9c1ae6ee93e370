package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"sectorfs/config"
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "sectorfs",
		Usage:   "A tool to manage files on a sector disk image",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "disk",
				Aliases: []string{"d"},
				Value:   config.DefaultDiskPath,
				Usage:   "disk image file",
				EnvVars: []string{"SECTORFS_DISK"},
			},
			&cli.IntFlag{
				Name:    "sectors",
				Value:   config.DefaultNumSectors,
				Usage:   "number of sectors on the disk",
				EnvVars: []string{"SECTORFS_SECTORS"},
			},
			&cli.StringFlag{
				Name:    "resolve",
				Value:   config.ResolveByName.String(),
				Usage:   "parent lookup: name (search tree for parent name) or walk (follow path)",
				EnvVars: []string{"SECTORFS_RESOLVE"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "trace file system operations to stderr",
			},
		},
		Commands: commands(),
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
