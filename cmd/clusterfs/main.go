package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-clusterfs/common"
	"github.com/mit-pdos/go-clusterfs/config"
	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/fs"
	"github.com/mit-pdos/go-clusterfs/vfs"
)

// loadConfig reads the config file and environment, then applies the
// command line flags on top.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	c, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("image") {
		c.Image = ctx.String("image")
	}
	if ctx.IsSet("block-size") {
		c.BlockSize = ctx.Uint64("block-size")
	}
	if ctx.IsSet("sectors") {
		c.Sectors = ctx.Uint64("sectors")
	}
	if ctx.IsSet("debug") {
		c.Debug = ctx.Uint64("debug")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Image == "" {
		return nil, fmt.Errorf("no image: set --image or CLUSTERFS_IMAGE")
	}
	c.Apply()
	return c, nil
}

// withVolume mounts the configured image for the duration of f.
func withVolume(f func(v *vfs.FS, d disk.Device, ctx *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		d, err := disk.OpenFileDevice(c.Image)
		if err != nil {
			return err
		}
		defer d.Close()
		v := vfs.MkFS()
		if !v.Mount(d) {
			return fmt.Errorf("mounting %s: %w", c.Image, v.Err())
		}
		ferr := f(v, d, ctx)
		if !v.Unmount(d) && ferr == nil {
			return fmt.Errorf("unmounting %s: %w", c.Image, v.Err())
		}
		return ferr
	}
}

func format(ctx *cli.Context) error {
	c, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	d, err := disk.NewFileDevice(c.Image, c.Sectors)
	if err != nil {
		return err
	}
	defer d.Close()
	v := vfs.MkFS()
	n := v.Format(d, c.BlockSize)
	if n < 0 {
		return fmt.Errorf("formatting %s: %w", c.Image, v.Err())
	}
	fmt.Fprintf(ctx.App.Writer, "%s: %d sectors, %d clusters of %d bytes\n",
		c.Image, c.Sectors, n, c.BlockSize)
	return nil
}

func info(ctx *cli.Context) error {
	c, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	d, err := disk.OpenFileDevice(c.Image)
	if err != nil {
		return err
	}
	defer d.Close()
	s, err := fs.Mount(d)
	if err != nil {
		return err
	}
	defer s.Unmount()
	sb, err := s.Superblock()
	if err != nil {
		return err
	}
	free, err := s.NumFree()
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "sectors:      %d\n", d.NumSectors())
	fmt.Fprintf(w, "block size:   %d\n", sb.BlockSize)
	fmt.Fprintf(w, "inodes:       %d\n", sb.NumInodes)
	fmt.Fprintf(w, "data begins:  %d\n", sb.DataBeginSector)
	fmt.Fprintf(w, "clusters:     %d\n", sb.TotalBlocks)
	fmt.Fprintf(w, "free:         %d\n", free)
	return nil
}

func write(v *vfs.FS, d disk.Device, ctx *cli.Context) error {
	r := ctx.App.Reader
	if path := ctx.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}
	fd := v.Open(d, "stdin")
	if fd < 0 {
		return v.Err()
	}
	defer v.Close(fd)
	if n := v.Write(fd, data, len(data)); n < 0 {
		return v.Err()
	}
	st, ok := v.Stat(fd)
	if !ok {
		return v.Err()
	}
	fmt.Fprintf(ctx.App.Writer, "inode %d: %d bytes\n", st.Inum, st.Size)
	return nil
}

func cat(v *vfs.FS, d disk.Device, ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: cat INUM")
	}
	inum, err := strconv.ParseUint(ctx.Args().First(), 10, 32)
	if err != nil {
		return fmt.Errorf("bad inode number: %w", err)
	}
	fd := v.OpenInode(d, common.Inum(inum))
	if fd < 0 {
		return v.Err()
	}
	defer v.Close(fd)
	st, ok := v.Stat(fd)
	if !ok {
		return v.Err()
	}
	p := make([]byte, chunkSize(st.Size))
	for {
		n := v.Read(fd, p, len(p))
		if n < 0 {
			return v.Err()
		}
		if n == 0 {
			return nil
		}
		if _, err := ctx.App.Writer.Write(p[:n]); err != nil {
			return err
		}
	}
}

// chunkSize caps read chunks at 64 KiB.
func chunkSize(size uint64) int {
	if size == 0 || size > 1<<16 {
		return 1 << 16
	}
	return int(size)
}

func truncate(v *vfs.FS, d disk.Device, ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: truncate INUM")
	}
	inum, err := strconv.ParseUint(ctx.Args().First(), 10, 32)
	if err != nil {
		return fmt.Errorf("bad inode number: %w", err)
	}
	fd := v.OpenInode(d, common.Inum(inum))
	if fd < 0 {
		return v.Err()
	}
	defer v.Close(fd)
	if v.Truncate(fd) < 0 {
		return v.Err()
	}
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "clusterfs",
		Usage: "format and inspect cluster-allocated volume images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config file (default $CLUSTERFS_CONFIG_FILE)",
			},
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "volume image file",
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug print level",
			},
		},
		Commands: []*cli.Command{{
			Name:  "format",
			Usage: "create or overwrite an image with an empty volume",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "block-size",
					Usage: "cluster size in bytes, a multiple of 512",
				},
				&cli.Uint64Flag{
					Name:  "sectors",
					Usage: "image size in 512-byte sectors",
				},
			},
			Action: format,
		}, {
			Name:   "info",
			Usage:  "print the superblock and free cluster count",
			Action: info,
		}, {
			Name:      "write",
			Usage:     "store a file (or stdin) in a new inode",
			ArgsUsage: "[FILE]",
			Action:    withVolume(write),
		}, {
			Name:      "cat",
			Usage:     "print the contents of an inode",
			ArgsUsage: "INUM",
			Action:    withVolume(cat),
		}, {
			Name:      "truncate",
			Usage:     "release every cluster of an inode",
			ArgsUsage: "INUM",
			Action:    withVolume(truncate),
		}},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
