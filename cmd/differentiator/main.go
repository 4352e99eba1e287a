package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agusespa/differentiator/internal/context"
	"github.com/agusespa/differentiator/internal/diff"
	"github.com/agusespa/differentiator/internal/parser"
	"github.com/agusespa/differentiator/internal/printer"
	"github.com/agusespa/differentiator/internal/registry"
	"github.com/agusespa/differentiator/pkg/config"
	"github.com/agusespa/differentiator/pkg/spinner"
)

func main() {
	configFile := flag.String("config", "config.json", "Path to configuration file")
	legacyPathPrefix := flag.Bool("legacy-path-prefix", false, "Resolve every PATH relative to the parent of the working directory, as the original tool did")
	showHelp := flag.Bool("help", false, "Show help message")
	flag.Parse()

	fmt.Println("")
	fmt.Println("=====================")
	fmt.Println(" Differentiator ")
	fmt.Println("=====================")
	fmt.Println("")

	if *showHelp {
		fmt.Println("Differentiator - symbolic source-to-source automatic differentiation")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Printf("  %s [options] PATH [PATH...]\n", os.Args[0])
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Printf("  %s system.cpp                  # Differentiate one file\n", os.Args[0])
		fmt.Printf("  %s a.cpp b.cpp                 # Differentiate several\n", os.Args[0])
		fmt.Printf("  %s --legacy-path-prefix a.cpp  # Resolve a.cpp as '../a.cpp'\n", os.Args[0])
		fmt.Println()
		return
	}

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one PATH is required")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config from %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	baseCtx, err := buildBaseContext(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	reg := registry.NewDefaultDispatchRegistry()

	fmt.Println("")
	fmt.Println("-------------------------")
	fmt.Println("")

	for _, path := range paths {
		resolved := path
		if *legacyPathPrefix {
			resolved = filepath.Join("..", path)
		}
		if err := processFile(resolved, baseCtx, reg, cfg.Verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// buildBaseContext builds the default environment (spec.md §6) and layers
// cfg's extra coercions on top of it.
func buildBaseContext(cfg *config.Config) (*context.Context, error) {
	ctx := context.NewDefaultContext()
	for _, c := range cfg.ExtraCoercions {
		fromType, ok := ctx.GetType(c.From)
		if !ok {
			return nil, fmt.Errorf("unknown coercion source type %q in config", c.From)
		}
		toType, ok := ctx.GetType(c.To)
		if !ok {
			return nil, fmt.Errorf("unknown coercion target type %q in config", c.To)
		}
		ctx.AddTypeConversion(fromType, toType)
	}
	return ctx, nil
}

func processFile(path string, baseCtx *context.Context, reg *registry.FunctionDiffStorage, verbose bool) error {
	fmt.Printf("Parsing file '%s'\n", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	fileCtx := context.NewChild(baseCtx)
	p := parser.New(string(src), path)
	file, err := p.ParseFile(fileCtx)
	if err != nil {
		return err
	}

	sp := spinner.New(fmt.Sprintf("Differentiating '%s'", path))
	sp.Start()
	dFile, err := diff.DiffFile(file, reg)
	sp.Stop()
	if err != nil {
		return err
	}

	outPath := derivedPath(path)
	rendered := printer.PrintFile(dFile)
	if err := os.WriteFile(outPath, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write file '%s': %w", outPath, err)
	}

	fmt.Printf("Writing file '%s'\n", outPath)
	if verbose {
		fmt.Printf("%d top-level statement(s) in '%s'\n", len(dFile.Statements), outPath)
	}
	return nil
}

// derivedPath builds "d_"+basename alongside the original file, matching
// spec.md §4.5's file-level naming rule.
func derivedPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	return filepath.Join(dir, "d_"+base)
}
