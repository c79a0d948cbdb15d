package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/keks/containerfs/codec"
	"github.com/keks/containerfs/container"
	"github.com/keks/containerfs/report"
)

type options struct {
	file   string
	path   string
	params string
	name   string
	pos    int64
	debug  bool
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	containerPath, command := os.Args[1], os.Args[2]

	opts, err := parseFlags(os.Args[3:])
	if err != nil {
		os.Exit(1)
	}

	if err := run(containerPath, command, opts); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: cfs <container> <command> [--file=...] [--path=...] [--params=bs,bc] [--debug]

commands:
  create   create a new container (--params=blockSize,blockCount [--name=...])
  stats    print container statistics
  read     print a file to stdout (--path, --file)
  write    store stdin as a file (--path, --file)
  delete   delete a file (--path, --file)
  dir      list a directory (--path)
  mkdir    create a directory (--path)
  rmdir    delete an empty directory (--path)
  block    describe the block at --pos
  report   write a PNG usage report (--file)
  console  interactive mode
`)
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}

	flags := flag.NewFlagSet("cfs", flag.ContinueOnError)
	flags.StringVar(&opts.file, "file", "", "file name, or output path for report")
	flags.StringVar(&opts.path, "path", "/", "directory path inside the container")
	flags.StringVar(&opts.params, "params", "", "blockSize,blockCount for create")
	flags.StringVar(&opts.name, "name", "", "container name for create")
	flags.Int64Var(&opts.pos, "pos", 0, "block byte offset for block")
	flags.BoolVar(&opts.debug, "debug", false, "enable logging")

	return opts, flags.Parse(args)
}

func run(containerPath, command string, opts *options) error {
	if command == "create" {
		return create(containerPath, opts)
	}

	c, err := container.Open(containerPath, opts.debug)
	if err != nil {
		return err
	}
	defer c.Close()

	return dispatch(c, command, opts)
}

func create(containerPath string, opts *options) error {
	parts := strings.Split(opts.params, ",")
	if len(parts) != 2 {
		return fmt.Errorf("create needs --params=blockSize,blockCount")
	}
	blockSize, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return fmt.Errorf("block size %q: %v", parts[0], err)
	}
	blockCount, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("block count %q: %v", parts[1], err)
	}

	name := opts.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(containerPath), filepath.Ext(containerPath))
	}

	c, err := container.Create(containerPath, name, blockSize, blockCount, opts.debug)
	if err != nil {
		return err
	}

	return c.Close()
}

func dispatch(c *container.Container, command string, opts *options) error {
	switch command {
	case "stats":
		return printStats(c)

	case "read":
		data, err := c.ReadFile(opts.path, opts.file)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err

	case "write":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		return c.WriteFile(opts.path, opts.file, data)

	case "delete":
		return c.DeleteFile(opts.path, opts.file)

	case "dir":
		return printDir(c, opts.path)

	case "mkdir":
		return c.WriteDirectory(opts.path)

	case "rmdir":
		return c.DeleteDirectory(opts.path)

	case "block":
		desc, err := c.EnumerateBlock(opts.pos)
		if err != nil {
			return err
		}
		fmt.Println(desc)
		return nil

	case "report":
		out := opts.file
		if out == "" {
			out = "container_report.png"
		}
		return report.Usage(c, out)

	case "console":
		return console(c)
	}

	usage()
	return fmt.Errorf("unknown command %q", command)
}

func printStats(c *container.Container) error {
	stats := c.Stats()
	fmt.Printf("Name:        %s\n", stats.Name)
	fmt.Printf("Version:     %d\n", stats.Version)
	fmt.Printf("Created:     %s\n", codec.FormatTime(stats.Created))
	fmt.Printf("Block size:  %d bytes\n", stats.BlockSize)
	fmt.Printf("Blocks:      %d (%d free)\n", stats.BlockCount, stats.FreeBlocks)
	fmt.Printf("Capacity:    %d bytes (%d free)\n", stats.TotalBytes, stats.FreeBytes)

	return nil
}

func printDir(c *container.Container, path string) error {
	listing, err := c.ReadDirectory(path)
	if err != nil {
		return err
	}

	for _, dir := range listing.Directories {
		fmt.Printf("%-40s <DIR>\n", dir)
	}
	for _, file := range listing.Files {
		fmt.Printf("%-40s %d\n", file.Name, file.Size)
	}
	fmt.Printf("%d directories, %d files\n", len(listing.Directories), len(listing.Files))

	return nil
}

// console runs commands from stdin, one per line, until "exit".
func console(c *container.Container) error {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("cfs> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if fields[0] == "exit" || fields[0] == "quit" {
				break
			}
			if fields[0] == "console" {
				fmt.Print("cfs> ")
				continue
			}

			opts, err := parseFlags(fields[1:])
			if err != nil {
				fmt.Print("cfs> ")
				continue
			}
			if err := dispatch(c, fields[0], opts); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		}
		fmt.Print("cfs> ")
	}

	return scanner.Err()
}
