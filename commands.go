package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"sectorfs/config"
	"sectorfs/disk"
	"sectorfs/filesys"
)

// loadConfig builds the volume configuration from the global flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	cfg.DiskPath = c.String("disk")
	cfg.NumSectors = c.Int("sectors")
	cfg.Debug = c.Bool("debug")
	mode, err := config.ParseResolveMode(c.String("resolve"))
	if err != nil {
		return cfg, err
	}
	cfg.Resolve = mode
	return cfg, cfg.Validate()
}

// withFS mounts (or formats) the disk, runs fn, and closes everything.
func withFS(c *cli.Context, format bool, fn func(fs *filesys.FileSystem) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	drv, err := disk.OpenFileDriver(cfg.DiskPath, cfg.NumSectors)
	if err != nil {
		return err
	}
	fs, err := filesys.New(drv, cfg, format)
	if err != nil {
		drv.Close()
		return err
	}
	err = fn(fs)
	fs.Close()
	if cerr := drv.Close(); err == nil {
		err = cerr
	}
	return err
}

func argN(c *cli.Context, n int) error {
	if c.NArg() != n {
		return cli.Exit(fmt.Sprintf("%s: expected %d argument(s), got %d", c.Command.Name, n, c.NArg()), 2)
	}
	return nil
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "format",
			Usage: "initialise an empty volume",
			Action: func(c *cli.Context) error {
				return withFS(c, true, func(fs *filesys.FileSystem) error {
					return nil
				})
			},
		},
		{
			Name:      "create",
			Usage:     "create a file of a fixed size",
			ArgsUsage: "PATH SIZE",
			Action: func(c *cli.Context) error {
				if err := argN(c, 2); err != nil {
					return err
				}
				size, err := strconv.Atoi(c.Args().Get(1))
				if err != nil {
					return err
				}
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					return fs.Create(c.Args().Get(0), size)
				})
			},
		},
		{
			Name:      "copy",
			Aliases:   []string{"cp"},
			Usage:     "copy a host file into the volume",
			ArgsUsage: "HOSTFILE PATH",
			Action: func(c *cli.Context) error {
				if err := argN(c, 2); err != nil {
					return err
				}
				src, err := os.Open(c.Args().Get(0))
				if err != nil {
					return err
				}
				defer src.Close()
				stat, err := src.Stat()
				if err != nil {
					return err
				}
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					return fs.Copy(c.Args().Get(1), src, int(stat.Size()))
				})
			},
		},
		{
			Name:      "cat",
			Aliases:   []string{"p"},
			Usage:     "print a file",
			ArgsUsage: "PATH",
			Action: func(c *cli.Context) error {
				if err := argN(c, 1); err != nil {
					return err
				}
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					data, err := fs.ReadFile(c.Args().Get(0))
					if err != nil {
						return err
					}
					_, err = c.App.Writer.Write(data)
					return err
				})
			},
		},
		{
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "PATH",
			Action: func(c *cli.Context) error {
				if err := argN(c, 1); err != nil {
					return err
				}
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					return fs.CreateDirectory(c.Args().Get(0))
				})
			},
		},
		{
			Name:      "ls",
			Aliases:   []string{"l"},
			Usage:     "list a directory",
			ArgsUsage: "PATH",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}},
			},
			Action: func(c *cli.Context) error {
				path := filesys.Segment
				if c.NArg() > 0 {
					path = c.Args().Get(0)
				}
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					return fs.List(c.App.Writer, path, c.Bool("recursive"))
				})
			},
		},
		{
			Name:      "remove",
			Aliases:   []string{"rm"},
			Usage:     "remove a file or directory",
			ArgsUsage: "PATH",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}},
			},
			Action: func(c *cli.Context) error {
				if err := argN(c, 1); err != nil {
					return err
				}
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					return fs.Remove(c.Args().Get(0), c.Bool("recursive"))
				})
			},
		},
		{
			Name:    "dump",
			Aliases: []string{"D"},
			Usage:   "print the bitmap, system headers and root directory",
			Action: func(c *cli.Context) error {
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					return fs.Print(c.App.Writer)
				})
			},
		},
		{
			Name:  "df",
			Usage: "report free sectors",
			Action: func(c *cli.Context) error {
				return withFS(c, false, func(fs *filesys.FileSystem) error {
					free, err := fs.FreeSectors()
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%d of %d sectors free\n", free, fs.NumSectors())
					return nil
				})
			},
		},
	}
}
