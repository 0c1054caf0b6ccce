// Command rke-node is the RKE node CLI: a thin harness over the dispatch,
// store, and authpage packages. It exposes "serve" (drive the dispatcher
// from length-prefixed test frames) and "keygen" (split and persist one key
// directly), matching the flag.NewFlagSet-per-subcommand / cmdXxxMain
// router structure node/keymgr.go uses for its own subcommands.
package main

import (
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"raidax.dev/rke/authpage"
	"raidax.dev/rke/config"
	"raidax.dev/rke/dispatch"
	"raidax.dev/rke/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: rke-node <serve|keygen> [flags]")
		return 2
	}
	sub := args[0]
	subargs := args[1:]

	switch sub {
	case "serve":
		if err := cmdServe(subargs, stdout, stderr); err != nil {
			fmt.Fprintln(stderr, "serve error:", err)
			return 1
		}
		return 0
	case "keygen":
		out, err := cmdKeygen(subargs)
		if err != nil {
			fmt.Fprintln(stderr, "keygen error:", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown subcommand:", sub)
		return 2
	}
}

func newDispatcher(datadir string, coinID uint16, logLevel string) (*dispatch.Dispatcher, *authpage.BoltPageStore, error) {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(logLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st := store.New(datadir, logger)
	pages, err := authpage.NewBoltPageStore(datadir, 1_000_000)
	if err != nil {
		return nil, nil, fmt.Errorf("open page store: %w", err)
	}
	return dispatch.New(st, pages, coinID, logger), pages, nil
}

// cmdServe reads length-prefixed test frames from stdin (or --in): a 1-byte
// command name length, the command name, a 4-byte big-endian body length,
// the body, and a 16-byte nonce. For each frame it runs the dispatcher and
// writes back (to stdout, or --out) a 4-byte big-endian status code, a
// 4-byte big-endian output length, and the output. This is the
// local-exercising harness called out by §1's Non-goals — not a network
// listener.
func cmdServe(argv []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rke-node serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	defaults := config.DefaultConfig()
	datadir := fs.String("datadir", defaults.CWD, "node data directory")
	coinID := fs.Uint("coin-id", uint(defaults.CoinID), "this node's encryption coin_id")
	logLevel := fs.String("log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	in := fs.String("in", "", "frame source file (default: stdin)")
	out := fs.String("out", "", "frame sink file (default: stdout)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if err := os.MkdirAll(*datadir, 0o750); err != nil {
		return fmt.Errorf("datadir create: %w", err)
	}

	d, pages, err := newDispatcher(*datadir, uint16(*coinID), *logLevel)
	if err != nil {
		return err
	}
	defer pages.Close()

	var reader io.Reader = os.Stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		reader = f
	}
	var writer io.Writer = stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		writer = f
	}

	for {
		if err := serveOneFrame(d, reader, writer); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func serveOneFrame(d *dispatch.Dispatcher, r io.Reader, w io.Writer) error {
	var nameLen [1]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return err
	}
	name := make([]byte, nameLen[0])
	if _, err := io.ReadFull(r, name); err != nil {
		return fmt.Errorf("read command name: %w", err)
	}

	var bodyLen [4]byte
	if _, err := io.ReadFull(r, bodyLen[:]); err != nil {
		return fmt.Errorf("read body length: %w", err)
	}
	body := make([]byte, binary.BigEndian.Uint32(bodyLen[:]))
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	ctx := &dispatch.ConnCtx{Body: body}
	if _, err := io.ReadFull(r, ctx.Nonce[:]); err != nil {
		return fmt.Errorf("read nonce: %w", err)
	}

	d.Dispatch(string(name), ctx)

	var status [4]byte
	binary.BigEndian.PutUint32(status[:], uint32(int32(ctx.CommandStatus)))
	if _, err := w.Write(status[:]); err != nil {
		return err
	}
	var outLen [4]byte
	binary.BigEndian.PutUint32(outLen[:], uint32(len(ctx.Output)))
	if _, err := w.Write(outLen[:]); err != nil {
		return err
	}
	_, err := w.Write(ctx.Output)
	return err
}

// cmdKeygen builds an rke_generate request from its flags and runs it
// through the dispatcher against a store rooted at --datadir.
func cmdKeygen(argv []string) (string, error) {
	fs := flag.NewFlagSet("rke-node keygen", flag.ExitOnError)
	defaults := config.DefaultConfig()
	datadir := fs.String("datadir", defaults.CWD, "node data directory")
	keyIDHex := fs.String("key-id", "", "32 hex chars: the 16-byte key_id")
	n := fs.Uint("n", 5, "total fragments")
	thresh := fs.Uint("t", 3, "reconstruction threshold")
	keyType := fs.Uint("key-type", 1, "key_type byte stored in metadata")
	if err := fs.Parse(argv); err != nil {
		return "", err
	}
	if *keyIDHex == "" {
		return "", fmt.Errorf("--key-id is required")
	}
	raw, err := hex.DecodeString(*keyIDHex)
	if err != nil || len(raw) != 16 {
		return "", fmt.Errorf("--key-id must be 32 hex chars")
	}
	if err := os.MkdirAll(*datadir, 0o750); err != nil {
		return "", fmt.Errorf("datadir create: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	st := store.New(*datadir, logger)
	pages, err := authpage.NewBoltPageStore(*datadir, 1_000_000)
	if err != nil {
		return "", fmt.Errorf("open page store: %w", err)
	}
	defer pages.Close()
	d := dispatch.New(st, pages, defaults.CoinID, logger)
	d.SetNow(func() int64 { return time.Now().Unix() })

	body := make([]byte, 21)
	copy(body[0:16], raw)
	body[16] = byte(*keyType)
	body[17] = byte(*n)
	body[18] = byte(*thresh)
	body[19], body[20] = 0xff, 0xff

	ctx := &dispatch.ConnCtx{Body: body}
	d.Dispatch("rke_generate", ctx)
	if ctx.CommandStatus != 0 {
		return "", fmt.Errorf("rke_generate failed: status=%d", ctx.CommandStatus)
	}
	return fmt.Sprintf("generated key %s: %d fragments, threshold %d", *keyIDHex, *n, *thresh), nil
}
