package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "mcp": true,
	"breath": true, "purify": true, "meeting": true,
	"central": true, "hacoin": true,
	"help": true,
}

// splitGlobal separates leading global flags from the command and its arguments.
func splitGlobal(args []string) (global, rest []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--dir" || arg == "-d":
			global = append(global, arg)
			if i+1 < len(args) {
				i++
				global = append(global, args[i])
			}
		case strings.HasPrefix(arg, "--dir=") || strings.HasPrefix(arg, "-d="):
			global = append(global, arg)
		default:
			return global, args[i:]
		}
	}
	return global, nil
}

// commandArg returns the first argument after global flags, or "".
func commandArg(args []string) string {
	_, rest := splitGlobal(args)
	if len(rest) == 0 {
		return ""
	}
	return rest[0]
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	arg := commandArg(args)
	if arg == "" {
		return false // No command → MCP server
	}
	return cliCommands[arg] || isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	arg := commandArg(args)
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___  ___  ___ ___ _  _ ___   _   ___ _____
  / __|/ _ \| _ \ __| || | __| /_\ | _ \_   _|
 | (__| (_) |   / _|| __ | _| / _ \|   / | |
  \___|\___/|_|_\___|_||_|___/_/ \_\_|_\ |_|

  Breath, purify, meeting and central memory store

  Usage: coreheart <command> [options]
         coreheart serve
         coreheart --help

  MCP server mode requires piped input.`)
}

func run(args []string) error {
	return newCLIApp(&app{}).Run(args)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not read .env: %v\n", err)
	}

	args := os.Args[1:]

	// No args + interactive terminal → show banner and exit
	if len(args) == 0 && isTerminal() {
		printBanner()
		return
	}

	// CLI mode: known subcommand, help or version
	if isCLIMode(args) {
		if err := run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if cmd := commandArg(args); cmd != "" && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", cmd)
		fmt.Fprintf(os.Stderr, "Run 'coreheart --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	global, _ := splitGlobal(args)
	mcpArgs := append(append([]string{os.Args[0]}, global...), "mcp")
	if err := run(mcpArgs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
