package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inodefs/inodefs/handle"
	"github.com/inodefs/inodefs/tree"
	"github.com/inodefs/inodefs/util"
	"github.com/inodefs/inodefs/volume"
)

// Shell holds the state one interactive blockfsh session operates on: a
// single in-memory volume, its directory tree, an open-handle table, and
// the session (current directory) the REPL's commands act through.
type Shell struct {
	vol     *volume.Volume
	tr      *tree.Tree
	handles *handle.Table
	session *tree.Session
	out     io.Writer
}

// Run reads newline-separated command lines from r, one cobra invocation
// per line, writing output to the shell's configured writer, until r is
// exhausted.
func (sh *Shell) Run(r io.Reader) error {
	root := sh.newRootCommand()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// newRootCommand builds the blockfsh command tree: one root cobra.Command
// re-parsed for every REPL line, the way a shell's builtins are dispatched
// through a single parser per line rather than a persistent process tree.
func (sh *Shell) newRootCommand() *cobra.Command {
	root := &cobra.Command{Use: "blockfsh", SilenceUsage: true, SilenceErrors: true}

	root.AddCommand(
		&cobra.Command{
			Use:   "ls",
			Short: "list the current directory",
			RunE: func(cmd *cobra.Command, args []string) error {
				entries, err := sh.tr.List(sh.session)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(sh.out, "%s\t%s\t%d\n", e.Kind, e.Name, e.Inode)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "cd [path]",
			Short: "change the current directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sh.tr.Chdir(sh.session, args[0])
			},
		},
		&cobra.Command{
			Use:   "mkdir [name]",
			Short: "create a subdirectory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := sh.tr.Mkdir(sh.session, args[0])
				return err
			},
		},
		&cobra.Command{
			Use:   "touch [name]",
			Short: "create an empty file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := sh.tr.Create(sh.session, args[0])
				return err
			},
		},
		&cobra.Command{
			Use:   "rm [name]",
			Short: "remove a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sh.tr.Remove(sh.session, args[0])
			},
		},
		&cobra.Command{
			Use:   "rmdir [name]",
			Short: "remove an empty subdirectory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sh.tr.Rmdir(sh.session, args[0])
			},
		},
		&cobra.Command{
			Use:   "cat [path]",
			Short: "print a file's contents",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				h, err := sh.handles.Open(sh.session, args[0], false)
				if err != nil {
					return err
				}
				defer h.Close()
				buf := make([]byte, h.Size())
				n, err := h.Read(buf)
				if err != nil {
					return err
				}
				fmt.Fprintln(sh.out, string(buf[:n]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "write [path] [text...]",
			Short: "append text to a file, creating it if necessary",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				h, err := sh.handles.Open(sh.session, args[0], true)
				if err != nil {
					return err
				}
				defer h.Close()
				if _, err := h.Seek(0, io.SeekEnd); err != nil {
					return err
				}
				text := strings.Join(args[1:], " ")
				_, err = h.Write([]byte(text))
				return err
			},
		},
		&cobra.Command{
			Use:   "seek [path] [offset]",
			Short: "report a file's size and the resolved offset from its start",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				off, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("blockfsh: invalid offset %q: %w", args[1], err)
				}
				h, err := sh.handles.Open(sh.session, args[0], false)
				if err != nil {
					return err
				}
				defer h.Close()
				resolved, err := h.Seek(off, io.SeekStart)
				if err != nil {
					return err
				}
				fmt.Fprintf(sh.out, "size=%d offset=%d\n", h.Size(), resolved)
				return nil
			},
		},
		&cobra.Command{
			Use:   "tree",
			Short: "render the subtree rooted at the current directory",
			RunE: func(cmd *cobra.Command, args []string) error {
				out, err := sh.tr.Walk(sh.session)
				if err != nil {
					return err
				}
				fmt.Fprint(sh.out, out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "dump [path]",
			Short: "hex-dump a file's bytes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				h, err := sh.handles.Open(sh.session, args[0], false)
				if err != nil {
					return err
				}
				defer h.Close()
				buf := make([]byte, h.Size())
				n, err := h.Read(buf)
				if err != nil {
					return err
				}
				fmt.Fprint(sh.out, util.HexDump(buf[:n], 16, true, true, false))
				return nil
			},
		},
		&cobra.Command{
			Use:   "df",
			Short: "report pool block usage",
			RunE: func(cmd *cobra.Command, args []string) error {
				total := sh.vol.TotalBlocks()
				avail := sh.vol.AvailableBlocks()
				fmt.Fprintf(sh.out, "total=%d available=%d used=%d\n", total, avail, total-avail)
				return nil
			},
		},
	)

	return root
}
