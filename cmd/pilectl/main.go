// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command pilectl is a small command-line front end over a single
// pile file, exercising every operation in the pile's store and
// branch surface: put, get, meta, iter, branches, head, update, and
// restore.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/pflag"

	"github.com/triblespace/pile/lib/pile"
)

// snapshotEncMode is a Core Deterministic Encoding (RFC 8949 §4.2)
// CBOR mode: sorted map keys, smallest integer encoding, no
// indefinite-length items. Same snapshot always produces identical
// bytes, which matters for `inspect`'s output to be diffable across
// runs.
var snapshotEncMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pilectl: CBOR encoder initialization failed: " + err.Error())
	}
	return mode
}()

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger, os.Args[1:]); err != nil {
		logger.Error("pilectl failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return usageError()
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "put":
		return runPut(logger, rest)
	case "get":
		return runGet(logger, rest)
	case "meta":
		return runMeta(logger, rest)
	case "iter":
		return runIter(logger, rest)
	case "branches":
		return runBranches(logger, rest)
	case "head":
		return runHead(logger, rest)
	case "update":
		return runUpdate(logger, rest)
	case "restore":
		return runRestore(logger, rest)
	case "inspect":
		return runInspect(logger, rest)
	default:
		return fmt.Errorf("unknown subcommand %q", subcommand)
	}
}

func usageError() error {
	return fmt.Errorf(`usage: pilectl <subcommand> --pile <path> [flags]

subcommands:
  put      --pile PATH [--file PATH]     append a blob from stdin or --file, print its handle
  get      --pile PATH --handle HASH     print a blob's payload to stdout
  meta     --pile PATH --handle HASH     print a blob's timestamp and length
  iter     --pile PATH                   print every blob's handle, timestamp and length
  branches --pile PATH                   print every branch id
  head     --pile PATH --branch ID       print a branch's current head
  update   --pile PATH --branch ID --new HASH [--expect HASH] [--create]
                                         compare-and-set a branch head
  restore  --pile PATH                   run crash recovery once
  inspect  --pile PATH --format=cbor     dump a CBOR snapshot of both indices`)
}

func openAndRestore(path string) (*pile.Pile, error) {
	p, err := pile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pile: %w", err)
	}
	if err := p.Restore(); err != nil {
		p.Close()
		return nil, fmt.Errorf("restoring pile: %w", err)
	}
	return p, nil
}

func runPut(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	filePath := flagSet.String("file", "", "path to read the payload from (default: stdin)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" {
		return fmt.Errorf("--pile is required")
	}

	var payload []byte
	var err error
	if *filePath == "" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(*filePath)
	}
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	handle, err := p.Put(payload)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	fmt.Println(pile.FormatHash(handle))
	logger.Info("put blob", "handle", pile.FormatHash(handle), "length", len(payload))
	return nil
}

func runGet(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	handleHex := flagSet.String("handle", "", "blob handle (hex)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" || *handleHex == "" {
		return fmt.Errorf("--pile and --handle are required")
	}

	handle, err := pile.ParseHash(*handleHex)
	if err != nil {
		return err
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	reader, err := p.Reader()
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}

	payload, ok := reader.Get(handle)
	if !ok {
		return fmt.Errorf("handle %s not found", *handleHex)
	}

	_, err = os.Stdout.Write(payload)
	return err
}

func runMeta(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("meta", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	handleHex := flagSet.String("handle", "", "blob handle (hex)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" || *handleHex == "" {
		return fmt.Errorf("--pile and --handle are required")
	}

	handle, err := pile.ParseHash(*handleHex)
	if err != nil {
		return err
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	reader, err := p.Reader()
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}

	metadata, ok := reader.Metadata(handle)
	if !ok {
		return fmt.Errorf("handle %s not found", *handleHex)
	}

	fmt.Printf("timestamp=%d length=%d\n", metadata.Timestamp, metadata.Length)
	return nil
}

func runIter(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("iter", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" {
		return fmt.Errorf("--pile is required")
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	reader, err := p.Reader()
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}

	for handle, metadata := range reader.All() {
		fmt.Printf("%s timestamp=%d length=%d\n", pile.FormatHash(handle), metadata.Timestamp, metadata.Length)
	}
	return nil
}

func runBranches(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("branches", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" {
		return fmt.Errorf("--pile is required")
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	ids, err := p.Branches()
	if err != nil {
		return fmt.Errorf("branches: %w", err)
	}
	for _, id := range ids {
		fmt.Println(pile.FormatBranchID(id))
	}
	return nil
}

func runHead(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("head", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	branchHex := flagSet.String("branch", "", "branch id (hex)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" || *branchHex == "" {
		return fmt.Errorf("--pile and --branch are required")
	}

	branchID, err := pile.ParseBranchID(*branchHex)
	if err != nil {
		return err
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	head, err := p.Head(branchID)
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}
	if head == nil {
		fmt.Println("(none)")
		return nil
	}
	fmt.Println(pile.FormatHash(*head))
	return nil
}

// runUpdate implements the compare-and-set branch update. --create
// is a caller-side policy layered over the pile's literal CAS
// semantics: it pre-checks Head and rejects an update whose --expect
// is absent when the branch already has a head, rather than changing
// what the pile itself considers a match for expected=None. The pile
// always treats expected=None as "I expect no head to exist yet."
func runUpdate(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("update", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	branchHex := flagSet.String("branch", "", "branch id (hex)")
	expectHex := flagSet.String("expect", "", "expected current head (hex); omit for 'expect absent'")
	newHex := flagSet.String("new", "", "new head (hex)")
	create := flagSet.Bool("create", false, "when --expect is omitted, check Head first and fail if the branch already exists")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" || *branchHex == "" || *newHex == "" {
		return fmt.Errorf("--pile, --branch, and --new are required")
	}

	branchID, err := pile.ParseBranchID(*branchHex)
	if err != nil {
		return err
	}
	newHead, err := pile.ParseHash(*newHex)
	if err != nil {
		return err
	}

	var expected *pile.Hash
	if *expectHex != "" {
		h, err := pile.ParseHash(*expectHex)
		if err != nil {
			return err
		}
		expected = &h
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	if expected == nil && *create {
		existing, err := p.Head(branchID)
		if err != nil {
			return fmt.Errorf("pre-checking head: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("branch %s already exists with head %s; refusing to create", *branchHex, pile.FormatHash(*existing))
		}
	}

	committed, observed, err := p.Update(branchID, expected, newHead)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if !committed {
		if observed == nil {
			return fmt.Errorf("conflict: branch has no head yet")
		}
		return fmt.Errorf("conflict: branch currently points to %s", pile.FormatHash(*observed))
	}

	logger.Info("branch updated", "branch", *branchHex, "new_head", *newHex)
	return nil
}

func runRestore(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("restore", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" {
		return fmt.Errorf("--pile is required")
	}

	p, err := pile.Open(*pilePath)
	if err != nil {
		return fmt.Errorf("opening pile: %w", err)
	}
	defer p.Close()

	if err := p.Restore(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	logger.Info("restore complete", "path", *pilePath)
	return nil
}

// snapshotDocument is the shape exported by `inspect --format=cbor`.
// It is debug/export tooling only and is never part of the on-disk
// pile format.
type snapshotDocument struct {
	Blobs    map[string]pile.BlobMetadata `cbor:"blobs"`
	Branches map[string]string            `cbor:"branches"`
}

func runInspect(logger *slog.Logger, args []string) error {
	flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	pilePath := flagSet.String("pile", "", "path to the pile file")
	format := flagSet.String("format", "cbor", "output format (only 'cbor' is supported)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *pilePath == "" {
		return fmt.Errorf("--pile is required")
	}
	if *format != "cbor" {
		return fmt.Errorf("unsupported --format %q", *format)
	}

	p, err := openAndRestore(*pilePath)
	if err != nil {
		return err
	}
	defer p.Close()

	reader, err := p.Reader()
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}

	document := snapshotDocument{
		Blobs:    make(map[string]pile.BlobMetadata),
		Branches: make(map[string]string),
	}
	for handle, metadata := range reader.All() {
		document.Blobs[pile.FormatHash(handle)] = metadata
	}
	for _, id := range reader.Branches() {
		head, _ := reader.Head(id)
		document.Branches[pile.FormatBranchID(id)] = pile.FormatHash(head)
	}

	data, err := snapshotEncMode.Marshal(document)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}
