// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aplane-algo/icsign/internal/crypto"
	"github.com/aplane-algo/icsign/internal/engine"
	"github.com/aplane-algo/icsign/internal/envelope"
	"github.com/aplane-algo/icsign/internal/fsutil"
	"github.com/aplane-algo/icsign/internal/identity"
	"github.com/aplane-algo/icsign/internal/principal"
	"github.com/aplane-algo/icsign/internal/transport"
	"github.com/aplane-algo/icsign/internal/util"
)

// newFlagSet returns a flag set for a subcommand that reports errors to stderr.
func (a *app) newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(a.stderr, "Usage: icsign %s\n", synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses flags anywhere among the positional arguments and
// returns the positionals. Everything after "--" is positional.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// wantArgs checks the positional count, printing usage on mismatch.
func wantArgs(fs *flag.FlagSet, got []string, lo, hi int) error {
	if len(got) < lo || len(got) > hi {
		fs.Usage()
		return errUsage
	}
	return nil
}

// expireAfterFlag parses an --expire-after value; empty means the default.
func expireAfterFlag(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return transport.ParseExpireAfter(s)
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func (a *app) cmdSign(args []string) error {
	fs := a.newFlagSet("sign", "sign <canister> <method> [argument] [options]")
	query := fs.Bool("query", false, "Sign as a query call")
	update := fs.Bool("update", false, "Sign as an update call")
	argType := fs.String("type", "", "Argument type: idl or raw (hex)")
	random := fs.String("random", "", "Generate a random argument; value is a YAML config (may be empty)")
	expire := fs.String("expire-after", "", "Validity window, e.g. 5m or \"1h 30m\"")
	file := fs.String("file", "", "Output file, or - for stdout")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 2, 3); err != nil {
		return err
	}
	expireAfter, err := expireAfterFlag(*expire)
	if err != nil {
		return err
	}

	params := engine.SignParams{
		Canister:    pos[0],
		Method:      pos[1],
		ArgType:     *argType,
		Random:      *random,
		UseRandom:   flagSet(fs, "random"),
		Query:       *query,
		Update:      *update,
		ExpireAfter: expireAfter,
	}
	if len(pos) == 3 {
		params.Argument = pos[2]
		params.HasArgument = true
	}

	eng, release, err := a.newEngine()
	if err != nil {
		return err
	}
	defer release()

	msg, err := eng.Sign(context.Background(), params)
	if err != nil {
		return err
	}
	sink, dest := a.sink(*file)
	if err := sink.Capture(msg); err != nil {
		return err
	}

	s := engine.Summarize(msg)
	util.Info("signed "+s.CallType,
		"canister", s.Canister, "method", s.Method, "request_id", s.RequestID,
		"valid_for", s.Validity, "expires", s.Expiration, "output", dest)
	return nil
}

func (a *app) cmdTransfer(args []string) error {
	fs := a.newFlagSet("transfer", "transfer <account-id> [options]")
	amount := fs.String("amount", "", "Amount in ICP, up to 8 decimals")
	icp := fs.String("icp", "", "Whole ICP (combine with --e8s)")
	e8s := fs.String("e8s", "", "e8s (combine with --icp)")
	memo := fs.String("memo", "", "Transfer memo (default 0)")
	fee := fs.String("fee", "", "Transaction fee in ICP (default 0.0001)")
	expire := fs.String("expire-after", "", "Validity window")
	file := fs.String("file", "", "Output file, or - for stdout")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 1, 1); err != nil {
		return err
	}
	expireAfter, err := expireAfterFlag(*expire)
	if err != nil {
		return err
	}

	eng, release, err := a.newEngine()
	if err != nil {
		return err
	}
	defer release()

	bundle, err := eng.Transfer(context.Background(), engine.TransferParams{
		To:          pos[0],
		Amount:      *amount,
		ICP:         *icp,
		E8s:         *e8s,
		Memo:        *memo,
		Fee:         *fee,
		ExpireAfter: expireAfter,
	})
	if err != nil {
		return err
	}
	return a.captureBundle(bundle, *file)
}

func (a *app) cmdNeuronStake(args []string) error {
	fs := a.newFlagSet("neuron-stake", "neuron-stake --amount X --name NAME [options]")
	amount := fs.String("amount", "", "Amount to stake in ICP")
	name := fs.String("name", "", "Neuron name, up to 8 bytes")
	fee := fs.String("fee", "", "Transaction fee in ICP (default 0.0001)")
	expire := fs.String("expire-after", "", "Validity window")
	file := fs.String("file", "", "Output file, or - for stdout")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 0, 0); err != nil {
		return err
	}
	if *amount == "" || *name == "" {
		fs.Usage()
		return errUsage
	}
	expireAfter, err := expireAfterFlag(*expire)
	if err != nil {
		return err
	}

	eng, release, err := a.newEngine()
	if err != nil {
		return err
	}
	defer release()

	bundle, err := eng.StakeNeuron(context.Background(), engine.StakeNeuronParams{
		Amount:      *amount,
		Name:        *name,
		Fee:         *fee,
		ExpireAfter: expireAfter,
	})
	if err != nil {
		return err
	}
	return a.captureBundle(bundle, *file)
}

func (a *app) captureBundle(bundle *engine.TransferBundle, file string) error {
	sink, dest := a.sink(file)
	if err := sink.Capture(bundle); err != nil {
		return err
	}
	s := engine.Summarize(bundle.Ingress)
	util.Info("signed transfer",
		"to", bundle.Args.To.String(), "amount", bundle.Args.Amount.String(),
		"memo", bundle.Args.Memo, "request_id", s.RequestID,
		"valid_for", s.Validity, "output", dest)
	return nil
}

func (a *app) cmdRequestStatus(args []string) error {
	fs := a.newFlagSet("request-status", "request-status <request-id> --canister ID [options]")
	canisterText := fs.String("canister", "", "Canister the request was sent to")
	expire := fs.String("expire-after", "", "Validity window")
	file := fs.String("file", "", "Output file, or - for stdout")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 1, 1); err != nil {
		return err
	}
	if *canisterText == "" {
		fs.Usage()
		return errUsage
	}
	reqID, err := envelope.ParseRequestID(pos[0])
	if err != nil {
		return err
	}
	canister, err := principal.FromText(*canisterText)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", engine.ErrInvalidCanister, *canisterText, err)
	}
	expireAfter, err := expireAfterFlag(*expire)
	if err != nil {
		return err
	}

	eng, release, err := a.newEngine()
	if err != nil {
		return err
	}
	defer release()

	msg, err := eng.Transport.SignRequestStatus(canister, reqID, expireAfter)
	if err != nil {
		return err
	}
	sink, dest := a.sink(*file)
	if err := sink.Capture(msg); err != nil {
		return err
	}
	util.Info("signed request status", "request_id", reqID.String(), "canister", msg.CanisterID, "output", dest)
	return nil
}

func (a *app) cmdAccountID(args []string) error {
	fs := a.newFlagSet("account-id", "account-id [--of-principal P] [--subaccount HEX]")
	of := fs.String("of-principal", "", "Principal to derive the account of (default: identity)")
	sub := fs.String("subaccount", "", "Subaccount as hex, left-padded to 32 bytes")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 0, 0); err != nil {
		return err
	}

	var res *engine.AccountIDResult
	if *of != "" {
		res, err = engine.AccountID(*of, *sub)
	} else {
		eng, release, engErr := a.newEngine()
		if engErr != nil {
			return engErr
		}
		defer release()
		res, err = eng.AccountID("", *sub)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, res.AccountIdentifier.String())
	return nil
}

func (a *app) cmdGetPrincipal(args []string) error {
	fs := a.newFlagSet("get-principal", "get-principal")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 0, 0); err != nil {
		return err
	}
	id, err := a.loadIdentity()
	if err != nil {
		return err
	}
	defer id.Zero()
	_, _ = fmt.Fprintln(a.stdout, id.Principal().String())
	return nil
}

func (a *app) cmdIdentity(args []string) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(a.stderr, "Usage: icsign identity <new|encrypt> ...")
		return errUsage
	}
	switch args[0] {
	case "new":
		return a.cmdIdentityNew(args[1:])
	case "encrypt":
		return a.cmdIdentityEncrypt(args[1:])
	default:
		_, _ = fmt.Fprintf(a.stderr, "Unknown identity command: %s\n", args[0])
		return errUsage
	}
}

func (a *app) cmdIdentityNew(args []string) error {
	fs := a.newFlagSet("identity new", "identity new <out> [--scheme secp256k1|ed25519] [--encrypt]")
	scheme := fs.String("scheme", string(identity.SchemeSecp256k1), "Key scheme")
	encrypt := fs.Bool("encrypt", false, "Encrypt the identity file with a passphrase")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 1, 1); err != nil {
		return err
	}
	if err := refuseOverwrite(pos[0]); err != nil {
		return err
	}

	id, err := identity.Generate(identity.Scheme(*scheme))
	if err != nil {
		return err
	}
	defer id.Zero()
	pemData, err := id.EncodePEM()
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(pemData)

	if err := a.writeIdentity(pos[0], pemData, *encrypt); err != nil {
		return err
	}
	util.Info("identity created", "scheme", id.Scheme(), "file", pos[0])
	_, _ = fmt.Fprintln(a.stdout, id.Principal().String())
	return nil
}

func (a *app) cmdIdentityEncrypt(args []string) error {
	fs := a.newFlagSet("identity encrypt", "identity encrypt <in.pem> <out>")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 2, 2); err != nil {
		return err
	}
	in, out := pos[0], pos[1]

	pemData, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read identity file: %w", err)
	}
	defer crypto.ZeroBytes(pemData)
	if crypto.IsEncrypted(pemData) {
		return fmt.Errorf("%s is already encrypted", in)
	}
	id, err := identity.Load(pemData)
	if err != nil {
		return err
	}
	defer id.Zero()
	if err := refuseOverwrite(out); err != nil {
		return err
	}

	if err := a.writeIdentity(out, pemData, true); err != nil {
		return err
	}
	util.Info("identity encrypted", "scheme", id.Scheme(), "principal", id.Principal().String(), "file", out)
	return nil
}

// writeIdentity writes key material to path, encrypted when encrypt is set.
func (a *app) writeIdentity(path string, pemData []byte, encrypt bool) error {
	if dir := filepath.Dir(path); !exists(dir) {
		if err := fsutil.MkdirAll(dir); err != nil {
			return err
		}
	}
	if !encrypt {
		return fsutil.WriteSecretFile(path, pemData)
	}
	pass, err := a.newPassphrase()
	if err != nil {
		return err
	}
	defer pass.Destroy()
	sealed, err := crypto.Encrypt(pemData, pass.Bytes())
	if err != nil {
		return err
	}
	return fsutil.WriteSecretFile(path, sealed)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func refuseOverwrite(path string) error {
	if exists(path) {
		return fmt.Errorf("%s already exists", path)
	}
	return nil
}

func (a *app) cmdInspect(args []string) error {
	fs := a.newFlagSet("inspect", "inspect <file>")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := wantArgs(fs, pos, 1, 1); err != nil {
		return err
	}
	data, err := os.ReadFile(pos[0])
	if err != nil {
		return err
	}

	p := func(format string, args ...any) { _, _ = fmt.Fprintf(a.stdout, format, args...) }
	switch {
	case gjson.GetBytes(data, "ingress").Exists():
		bundle, err := engine.ParseTransferBundle(data)
		if err != nil {
			return err
		}
		s := engine.Summarize(bundle.Ingress)
		p("Transfer bundle (valid)\n")
		p("  To:          %s\n", bundle.Args.To.String())
		p("  Amount:      %s ICP\n", bundle.Args.Amount.String())
		p("  Fee:         %s ICP\n", bundle.Args.Fee.String())
		p("  Memo:        %d\n", bundle.Args.Memo)
		p("  Sender:      %s\n", bundle.Ingress.Sender)
		p("  Request id:  %s\n", s.RequestID)
		p("  Expires:     %s (valid for %s)\n", s.Expiration, s.Validity)
	case gjson.GetBytes(data, "method_name").Exists():
		msg, err := envelope.ParseSignedMessage(data)
		if err != nil {
			return err
		}
		s := engine.Summarize(msg)
		p("Signed %s (valid)\n", s.CallType)
		p("  Canister:    %s\n", s.Canister)
		p("  Method:      %s\n", s.Method)
		p("  Sender:      %s\n", msg.Sender)
		if s.RequestID != "" {
			p("  Request id:  %s\n", s.RequestID)
		}
		p("  Expires:     %s (valid for %s)\n", s.Expiration, s.Validity)
	default:
		msg, err := envelope.ParseRequestStatusMessage(data)
		if err != nil {
			return err
		}
		p("Request status poll (valid)\n")
		p("  Canister:    %s\n", msg.CanisterID)
		p("  Sender:      %s\n", msg.Sender)
		p("  Request id:  %s\n", msg.RequestID.String())
		p("  Expires:     %s\n", msg.Expiration.Format(time.RFC3339))
	}
	return nil
}
