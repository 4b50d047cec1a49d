package main

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/urfave/cli/v2"

	"github.com/chazu/extptr/extptr"
	"github.com/chazu/extptr/heapdump"
	"github.com/chazu/extptr/vm"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:   "demo",
		Usage:  "wrap an integer, pass it through the heap and collect it",
		Action: demo,
	}
}

func demo(c *cli.Context) error {
	w := c.App.Writer
	return withHeap(c, func(h *vm.Heap) error {
		// Rooted until the end of the demo; a Collector may be running.
		p := extptr.NewRooted(h, 1)
		fmt.Fprintf(w, "new:        %v (tag %q)\n", p, extptr.TypeName[int]())

		v := p.Value()
		fmt.Fprintf(w, "as value:   %s\n", h.Inspect(v))

		q, err := extptr.FromValue[int](h, v)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "from value: %d\n", *q.Addr())

		if _, err := extptr.FromValue[string](h, v); errors.Is(err, extptr.ErrExpectedExternalPtrType) {
			fmt.Fprintf(w, "as string:  %v\n", err)
		} else {
			return fmt.Errorf("expected a type mismatch, got %v", err)
		}

		if _, err := extptr.FromValue[int](h, vm.FromSmallInt(1)); err != nil {
			fmt.Fprintf(w, "plain int:  %v\n", err)
		}

		*q.AddrMut() = 2
		fmt.Fprintf(w, "mutated:    %d\n", *p.Addr())

		p.Release()
		h.Collect()
		fmt.Fprintf(w, "collected:  %d external pointers left, address %v\n", h.ExternalCount(), p.Addr())
		return nil
	})
}

// counted bumps a shared counter when dropped.
type counted struct {
	n     int
	drops *atomic.Int64
}

func (c *counted) Drop() { c.drops.Add(1) }

func collectCommand() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "allocate handles, keep some and report how many are finalized",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "allocate `N` handles",
				Value:   100,
			},
			&cli.IntFlag{
				Name:    "keep",
				Aliases: []string{"k"},
				Usage:   "preserve the first `K` handles",
				Value:   10,
			},
		},
		Action: collect,
	}
}

func collect(c *cli.Context) error {
	count, keep := c.Int("count"), c.Int("keep")
	if count < 0 || keep < 0 || keep > count {
		return fmt.Errorf("invalid --count %d --keep %d", count, keep)
	}

	w := c.App.Writer
	return withHeap(c, func(h *vm.Heap) error {
		var drops atomic.Int64
		for i := 0; i < count; i++ {
			if i < keep {
				extptr.NewRooted(h, counted{n: i, drops: &drops})
				continue
			}
			extptr.New(h, counted{n: i, drops: &drops})
		}

		stats := h.Collect()
		fmt.Fprintf(w, "allocated %d, kept %d, dropped %d in %s\n",
			count, keep, drops.Load(), stats.Duration)
		fmt.Fprintf(w, "live external pointers: %d\n", h.ExternalCount())
		return nil
	})
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "build a sample heap, collect it once and write a snapshot",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "write the snapshot to `FILE`",
			},
		},
		Action: dump,
	}
}

func dump(c *cli.Context) error {
	out := c.Path("out")
	if out == "" {
		out = config(c).Dump.Output
	}

	return withHeap(c, func(h *vm.Heap) error {
		var drops atomic.Int64
		buildSampleHeap(h, &drops)
		h.Collect()

		s := heapdump.Take(h)
		if err := heapdump.WriteFile(out, s); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "wrote %d external pointers to %s\n", len(s.Externals), out)
		return nil
	})
}

// buildSampleHeap leaves a mix of rooted and garbage handles on h.
func buildSampleHeap(h *vm.Heap, drops *atomic.Int64) {
	// Lists and their elements are unrooted until bound to a global.
	resume := h.Pause()
	names := []vm.Value{}
	for _, s := range []string{"alpha", "beta"} {
		names = append(names, extptr.New(h, s).Value())
	}
	h.SetGlobal("names", h.NewList(names...))
	h.SetGlobal("labels", h.GoToValue([]string{"sample", "heap"}))
	h.SetGlobal("sizes", h.GoToValue([]int{1, 2, 3}))
	resume()

	for i := 0; i < 3; i++ {
		extptr.NewRooted(h, int64(i))
	}
	for i := 0; i < 4; i++ {
		extptr.New(h, counted{n: i, drops: drops})
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print a heap snapshot",
		ArgsUsage: "FILE",
		Action:    inspect,
	}
}

func inspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("inspect: expected exactly one snapshot file", 2)
	}
	s, err := heapdump.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	return heapdump.WriteText(c.App.Writer, s)
}
