package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/tollgate/cmd"
	"grimm.is/tollgate/internal/brand"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		configFile := runFlags.String("config", brand.DefaultConfigPath(), "Configuration file")
		runFlags.StringVar(configFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")

		noStart := runFlags.Bool("no-start", false, "Leave the proxy stopped until started over the API")
		logLevel := runFlags.String("log-level", "", "Override log level (debug, info, warn, error)")
		runFlags.Parse(os.Args[2:])

		if err := cmd.RunDaemon(cmd.RunOptions{
			ConfigFile: *configFile,
			NoStart:    *noStart,
			LogLevel:   *logLevel,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Print the effective rule list")
		checkFlags.BoolVar(verbose, "v", false, "Print the effective rule list (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.DefaultConfigPath()
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}

		if err := cmd.RunCheck(os.Stdout, configFile, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		cmd.RunVersion(os.Stdout)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  run       Run the firewall proxy in the foreground
            Options: --config (-c) <file>, --no-start, --log-level <level>
  check     Validate a configuration file
            Options: --verbose (-v)
  version   Print version information

Examples:
  %s run -c /etc/tollgate/tollgate.hcl
  %s check -v /etc/tollgate/tollgate.hcl
`,
		brand.Name, brand.Description,
		brand.LowerName,
		brand.LowerName, brand.LowerName)
}
