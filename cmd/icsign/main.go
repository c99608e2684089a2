// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// icsign signs Internet Computer canister calls offline. Signed messages
// are written to a file for later submission by an online machine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/aplane-algo/icsign/internal/candid"
	"github.com/aplane-algo/icsign/internal/crypto"
	"github.com/aplane-algo/icsign/internal/engine"
	"github.com/aplane-algo/icsign/internal/identity"
	"github.com/aplane-algo/icsign/internal/principal"
	"github.com/aplane-algo/icsign/internal/security"
	"github.com/aplane-algo/icsign/internal/transport"
	"github.com/aplane-algo/icsign/internal/util"
	"github.com/aplane-algo/icsign/internal/version"
)

// errUsage marks errors for which usage has already been printed.
var errUsage = errors.New("invalid usage")

// app carries the global options shared by all commands.
type app struct {
	dataDir  string
	config   util.Config
	identity string // identity file, from -identity or config
	network  string

	stdout io.Writer
	stderr io.Writer

	clock      clock.Clock             // nil uses the system clock
	passphrase identity.PassphraseFunc // nil prompts on the terminal
}

func main() {
	util.InitLogger()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "icsign - offline signer for Internet Computer canister calls\n\n")
	_, _ = fmt.Fprintf(w, "Usage:\n")
	_, _ = fmt.Fprintf(w, "  icsign [-d path] [-identity pem] [-network url] <command> [options]\n\n")
	_, _ = fmt.Fprintf(w, "Commands:\n")
	_, _ = fmt.Fprintf(w, "  sign <canister> <method> [argument]   Sign a canister call\n")
	_, _ = fmt.Fprintf(w, "      [--query|--update] [--type idl|raw] [--random cfg] [--expire-after d] [--file path]\n")
	_, _ = fmt.Fprintf(w, "  transfer <account-id>                  Sign an ICP transfer and its status poll\n")
	_, _ = fmt.Fprintf(w, "      [--amount X | --icp N --e8s M] [--memo N] [--fee X] [--expire-after d] [--file path]\n")
	_, _ = fmt.Fprintf(w, "  neuron-stake --amount X --name NAME    Sign a transfer staking a new neuron\n")
	_, _ = fmt.Fprintf(w, "      [--fee X] [--expire-after d] [--file path]\n")
	_, _ = fmt.Fprintf(w, "  request-status <request-id> --canister ID [--expire-after d] [--file path]\n")
	_, _ = fmt.Fprintf(w, "  account-id [--of-principal P] [--subaccount HEX]\n")
	_, _ = fmt.Fprintf(w, "  get-principal\n")
	_, _ = fmt.Fprintf(w, "  identity new <out> [--scheme secp256k1|ed25519] [--encrypt]\n")
	_, _ = fmt.Fprintf(w, "  identity encrypt <in.pem> <out>\n")
	_, _ = fmt.Fprintf(w, "  inspect <file>                         Validate a message file and describe it\n")
	_, _ = fmt.Fprintf(w, "  config                                 Show the effective configuration\n")
	_, _ = fmt.Fprintf(w, "  version\n\n")
	_, _ = fmt.Fprintf(w, "Options:\n")
	_, _ = fmt.Fprintf(w, "  -d path          Data directory (or set %s, default %s)\n", util.DataDirEnvVar, util.DefaultDataDir)
	_, _ = fmt.Fprintf(w, "  -identity pem    Identity file (default from config)\n")
	_, _ = fmt.Fprintf(w, "  -network url     Network recorded in messages (default from config)\n")
	_, _ = fmt.Fprintf(w, "  --file -         Write the message to stdout instead of a file\n\n")
	_, _ = fmt.Fprintf(w, "Set %s=1 for debug logging.\n", util.DebugEnvVar)
}

// run executes one icsign invocation and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	err := a.run(args)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 1
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func (a *app) run(args []string) error {
	fs := flag.NewFlagSet("icsign", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() { usage(a.stderr) }
	dataDir := fs.String("d", "", "Data directory")
	identityFlag := fs.String("identity", "", "Identity file")
	networkFlag := fs.String("network", "", "Network URL")
	showVersion := fs.Bool("version", false, "Show version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		_, _ = fmt.Fprintln(a.stdout, version.String())
		return nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(a.stderr)
		return errUsage
	}

	a.dataDir = util.GetDataDir(*dataDir)
	cfg, err := util.LoadConfig(a.dataDir)
	if err != nil {
		return err
	}
	a.config = cfg
	a.identity = cfg.Identity
	if *identityFlag != "" {
		a.identity = *identityFlag
	}
	a.network = cfg.Network
	if *networkFlag != "" {
		a.network = *networkFlag
	}
	util.Debug("configuration loaded", "data_dir", a.dataDir, "identity", a.identity, "network", a.network)

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "sign":
		return a.cmdSign(cmdArgs)
	case "transfer":
		return a.cmdTransfer(cmdArgs)
	case "neuron-stake":
		return a.cmdNeuronStake(cmdArgs)
	case "request-status":
		return a.cmdRequestStatus(cmdArgs)
	case "account-id":
		return a.cmdAccountID(cmdArgs)
	case "get-principal":
		return a.cmdGetPrincipal(cmdArgs)
	case "identity":
		return a.cmdIdentity(cmdArgs)
	case "inspect":
		return a.cmdInspect(cmdArgs)
	case "config":
		util.DisplayConfig(a.stdout, a.dataDir)
		return nil
	case "version":
		_, _ = fmt.Fprintln(a.stdout, version.String())
		return nil
	default:
		_, _ = fmt.Fprintf(a.stderr, "Unknown command: %s\n\n", command)
		usage(a.stderr)
		return errUsage
	}
}

// loadIdentity opens the configured identity file.
func (a *app) loadIdentity() (identity.Identity, error) {
	pass := a.passphrase
	if cmd := a.config.PassphraseCommand(); pass == nil && cmd != nil {
		pass = func() (*crypto.Passphrase, error) {
			return cmd.Passphrase(context.Background())
		}
	}
	if pass == nil {
		pass = promptPassphrase(a.stderr, "Passphrase for "+a.identity+": ")
	}
	if err := security.Harden(a.config.LockMemory); err != nil {
		return nil, err
	}
	id, err := identity.LoadFile(a.identity, pass)
	if err != nil {
		return nil, err
	}
	util.Debug("identity loaded", "scheme", id.Scheme(), "principal", id.Principal().String())
	return id, nil
}

// newEngine builds the signing engine for the configured identity.
// The returned release function wipes the identity.
func (a *app) newEngine() (*engine.Engine, func(), error) {
	id, err := a.loadIdentity()
	if err != nil {
		return nil, nil, err
	}

	expireAfter, err := transport.ParseExpireAfter(a.config.ExpireAfter)
	if err != nil {
		id.Zero()
		return nil, nil, fmt.Errorf("invalid expire_after in config: %w", err)
	}
	timeout, err := a.config.LookupTimeoutDuration()
	if err != nil {
		id.Zero()
		return nil, nil, err
	}

	opts := []transport.Option{
		transport.WithNetwork(a.network),
		transport.WithExpireAfter(expireAfter),
		transport.WithLookup(timeoutLookup{
			lookup:  candid.NewDirLookup(a.config.CandidDir),
			timeout: timeout,
		}),
	}
	if a.clock != nil {
		opts = append(opts, transport.WithClock(a.clock))
	}
	t, err := transport.New(id, opts...)
	if err != nil {
		id.Zero()
		return nil, nil, err
	}

	eng, err := engine.NewEngine(t,
		engine.WithLedgerCanister(a.config.LedgerCanisterID),
		engine.WithGovernanceCanister(a.config.GovernanceCanisterID),
	)
	if err != nil {
		id.Zero()
		return nil, nil, err
	}
	return eng, id.Zero, nil
}

// sink returns where messages are written: stdout for "-", otherwise
// the given file or the configured default.
func (a *app) sink(path string) (transport.Sink, string) {
	if path == "-" {
		return transport.WriterSink{W: a.stdout}, "stdout"
	}
	if path == "" {
		path = a.config.OutputFile
	}
	return transport.FileSink{Path: path}, path
}

// timeoutLookup bounds each method lookup by timeout.
type timeoutLookup struct {
	lookup  transport.MethodLookup
	timeout time.Duration
}

func (l timeoutLookup) LookupMethod(ctx context.Context, canister principal.Principal, method string) (*candid.FuncType, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.lookup.LookupMethod(ctx, canister, method)
}
