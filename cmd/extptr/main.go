// Command extptr exercises typed external pointers against a collected heap.
//
// Usage:
//
//	extptr demo
//	extptr collect --count 100 --keep 10
//	extptr dump --out heap.cbor
//	extptr inspect heap.cbor
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli/v2"

	"github.com/chazu/extptr/manifest"
	"github.com/chazu/extptr/vm"
)

// Version is set at build time.
var Version = "dev"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE` instead of searching for " + manifest.FileName,
			EnvVars: []string{"EXTPTR_CONFIG"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "log collections and finalizers",
			EnvVars: []string{"EXTPTR_VERBOSE"},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "extptr:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "extptr",
		Usage:     "typed external pointers for a collected heap",
		UsageText: "extptr [global options] command [command options] [arguments...]",
		Version:   Version,
		Flags:     globalFlags(),
		Commands: []*cli.Command{
			demoCommand(),
			collectCommand(),
			dumpCommand(),
			inspectCommand(),
		},
		Before: setup,
	}
}

// setup loads the configuration and the log backend. The manifest is
// stashed in the app metadata for the subcommands.
func setup(c *cli.Context) error {
	var (
		m   *manifest.Manifest
		err error
	)
	if path := c.Path("config"); path != "" {
		m, err = manifest.LoadFile(path)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return err
	}

	verbosity := m.Log.Verbosity
	if c.Bool("verbose") && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, m.LogPath())
	vm.SetLogger(commonlog.GetLogger("extptr.vm"))

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata["manifest"] = m
	return nil
}

func config(c *cli.Context) *manifest.Manifest {
	if m, ok := c.App.Metadata["manifest"].(*manifest.Manifest); ok {
		return m
	}
	return manifest.Default()
}

// withHeap runs fn against a fresh heap, with a background collector when
// the configuration asks for one, and closes the heap afterwards.
func withHeap(c *cli.Context, fn func(h *vm.Heap) error) (err error) {
	m := config(c)
	name := "extptr"
	if c.Command != nil && c.Command.Name != "" {
		name += "." + c.Command.Name
	}
	h := vm.NewHeap(vm.WithLogger(commonlog.GetLogger(name)))

	defer func() {
		if cerr := h.Close(); err == nil {
			err = cerr
		}
	}()

	if m.PeriodicCollection() {
		gc := vm.NewCollector(h, m.Heap.Interval)
		gc.Start()
		defer gc.Stop()
	}
	return fn(h)
}
