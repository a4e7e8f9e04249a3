// Command rinetd is a port-forwarding daemon: it loads a configuration
// of forwarding rules and relays stream and datagram traffic between a
// local listen endpoint and a fixed remote endpoint per rule.
//
// Usage:
//
//	rinetd [-c <path> | --conf-file <path>] [-h | --help] [-v | --version]
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/relaydaemon/rinetd/lib/config"
	"github.com/relaydaemon/rinetd/lib/engine"
)

// versionString is reported by -v/--version, carried over verbatim
// from the original implementation.
const versionString = "rinetd 0.73 by supersocksr"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	confPath, showHelp, showVersion, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage(os.Stderr)
		return -1
	}

	if showHelp {
		printUsage(os.Stdout)
		return 0
	}
	if showVersion {
		fmt.Println(versionString)
		return 0
	}

	if confPath == "" {
		confPath = config.DefaultPath()
	}

	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	set, err := config.LoadFile(confPath)
	if err != nil {
		log.WithError(err).WithField("path", confPath).Error("failed to load configuration")
		return -1
	}
	if len(set.Rules) == 0 {
		log.WithField("path", confPath).Error("configuration contains no valid forwarding rules")
		return -1
	}

	log.WithFields(logrus.Fields{
		"path":     confPath,
		"rules":    len(set.Rules),
		"log_path": set.LogPath,
	}).Info("configuration loaded")

	e := engine.New(set, log)
	e.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			// Hot-reload is explicitly out of scope; SIGHUP is
			// logged and otherwise ignored.
			log.Info("received SIGHUP, ignoring (hot-reload is not supported)")
			continue
		}
		log.WithField("signal", sig.String()).Info("received shutdown signal")
		break
	}

	log.Info("shutting down")
	e.Shutdown()
	log.Info("stopped")
	return 0
}

// parseArgs implements the CLI surface of spec.md §6 directly rather
// than through the flag package, so -c and --conf-file share one case
// and a missing path argument is reported as a usage error. The first
// error (a -c with no path, or an unrecognized argument) is returned
// even when -h or -v also appears.
func parseArgs(args []string) (confPath string, help, version bool, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-h", "--help":
			help = true
		case "-v", "--version":
			version = true
		case "-c", "--conf-file":
			i++
			if i >= len(args) {
				return "", false, false, fmt.Errorf("rinetd: %s requires a path argument", args[i-1])
			}
			confPath = args[i]
		default:
			return "", false, false, fmt.Errorf("rinetd: unrecognized argument %q", args[i])
		}
	}
	return confPath, help, version, nil
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage: rinetd [-c <path> | --conf-file <path>] [-h | --help] [-v | --version]")
	fmt.Fprintln(w, "  -c, --conf-file <path>   configuration file (default /etc/rinetd.conf)")
	fmt.Fprintln(w, "  -h, --help               print this help and exit")
	fmt.Fprintln(w, "  -v, --version            print version and exit")
}
