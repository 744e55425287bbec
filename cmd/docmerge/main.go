package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/benjaminschreck/go-docmerge/pkg/docmerge"
	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/source"
)

const version = "0.1.0"

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docmerge <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  vars [-config file] <template>            List placeholders and their counts")
	fmt.Fprintln(w, "  render [flags] -o <out> <template>        Merge data into a template")
	fmt.Fprintln(w, "  version                                   Show version information")
	fmt.Fprintln(w, "\nRender flags:")
	fmt.Fprintln(w, "  -data file     .yaml, .yml, .json or .xlsx merge data")
	fmt.Fprintln(w, "  -config file   YAML configuration (defaults come from DOCMERGE_* variables)")
	fmt.Fprintln(w, "  -xsl file      stylesheet applied to the main part before merging")
	fmt.Fprintln(w, "  -param k=v     stylesheet parameter, repeatable")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "docmerge version %s\n", version)
		return 0
	case "vars":
		err = runVars(args[1:], stdout, stderr)
	case "render":
		err = runRender(args[1:], stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		usage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "docmerge %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// loadConfig reads the configuration file when one is given and falls back
// to the environment otherwise.
func loadConfig(path string) (*docmerge.Config, error) {
	if path == "" {
		return docmerge.ConfigFromEnvironment(), nil
	}
	return docmerge.LoadConfigFile(path)
}

func openTemplate(path, configPath string, stderr io.Writer) (*docmerge.Template, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return docmerge.Open(path,
		docmerge.WithConfig(config),
		docmerge.WithLogger(docmerge.NewLoggerFromConfig(stderr, config)),
	)
}

func runVars(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("vars", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one template, got %d", fs.NArg())
	}

	tmpl, err := openTemplate(fs.Arg(0), *configPath, stderr)
	if err != nil {
		return err
	}
	defer tmpl.Close()

	counts, err := tmpl.VariableCount()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdout, "%s\t%d\n", name, counts[name])
	}
	return nil
}

// paramFlag collects repeated -param name=value flags.
type paramFlag map[string]string

func (p paramFlag) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (p paramFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("parameter %q is not name=value", s)
	}
	p[name] = value
	return nil
}

func runRender(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataPath := fs.String("data", "", "merge data file")
	configPath := fs.String("config", "", "configuration file")
	xslPath := fs.String("xsl", "", "stylesheet applied to the main part")
	paramNS := fs.String("param-ns", "", "namespace URI of stylesheet parameters")
	out := fs.String("o", "", "output document")
	params := paramFlag{}
	fs.Var(params, "param", "stylesheet parameter name=value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one template, got %d", fs.NArg())
	}
	if *out == "" {
		return fmt.Errorf("missing -o output path")
	}

	var data *source.Dataset
	if *dataPath != "" {
		var err error
		if data, err = source.Load(*dataPath); err != nil {
			return err
		}
	}
	var stylesheet []byte
	if *xslPath != "" {
		var err error
		if stylesheet, err = os.ReadFile(*xslPath); err != nil {
			return fmt.Errorf("failed to read stylesheet: %w", err)
		}
	}

	tmpl, err := openTemplate(fs.Arg(0), *configPath, stderr)
	if err != nil {
		return err
	}
	defer tmpl.Close()

	if stylesheet != nil {
		if err := tmpl.ApplyXSLStyleSheet(stylesheet, params, *paramNS); err != nil {
			return err
		}
	}
	if data != nil {
		if err := source.Apply(tmpl, data); err != nil {
			return err
		}
	}
	return tmpl.SaveAs(*out)
}
