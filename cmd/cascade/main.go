// Package main is the entry point for the Cascade CLI.
// It stores, reads, lists and removes versioned files in the chunk store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/backend/factory"
	"github.com/prn-tf/cascade-store/internal/cache"
	"github.com/prn-tf/cascade-store/internal/cas"
	"github.com/prn-tf/cascade-store/internal/chunk"
	"github.com/prn-tf/cascade-store/internal/compress"
	"github.com/prn-tf/cascade-store/internal/config"
	"github.com/prn-tf/cascade-store/internal/domain"
	"github.com/prn-tf/cascade-store/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitNotFound = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "put":
		os.Exit(cmdPut(ctx, args))
	case "get":
		os.Exit(cmdGet(ctx, args))
	case "read":
		os.Exit(cmdRead(ctx, args))
	case "ls":
		os.Exit(cmdLs(ctx, args))
	case "rm":
		os.Exit(cmdRm(ctx, args))
	case "objects":
		os.Exit(cmdObjects(ctx, args))
	case "info":
		os.Exit(cmdInfo(ctx, args))

	case "compressors":
		for _, id := range compress.Supported() {
			fmt.Println(id)
		}

	case "version":
		fmt.Printf("Cascade CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(exitUsage)
	}
}

// stack bundles everything a command needs.
type stack struct {
	backend backend.Store
	chunks  cas.Store
	files   service.FileService
}

// commonFlags are shared by every command.
type commonFlags struct {
	configPath  string
	compression string
	chunkSize   uint64
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "path to config file")
	fs.StringVar(&cf.compression, "compression", "", "override compression identifier ("+strings.Join(compress.Supported(), ", ")+")")
	fs.Uint64Var(&cf.chunkSize, "chunk-size", 0, "override chunk size in bytes")
	return cf
}

// openStack loads config and wires the store.
func openStack(ctx context.Context, cf *commonFlags) (*stack, func(), error) {
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return nil, nil, err
	}
	if cf.compression != "" {
		cfg.CAS.Compression = cf.compression
	}
	if cf.chunkSize != 0 {
		cfg.Chunker.ChunkSize = cf.chunkSize
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	b, err := factory.New(ctx, cfg.Backend, logger)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := cas.NewStore(b, cas.Options{
		Compression: cfg.CAS.Compression,
		Algorithm:   domain.Algorithm(cfg.CAS.FingerprintAlgorithm),
	}, nil, logger)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	if cfg.CAS.CacheSize > 0 {
		chunks = cas.NewCachedStore(chunks, cache.NewCache(cfg.CAS.CacheSize))
	}
	writer := chunk.NewWriter(chunks, cfg.Chunker.Workers, cfg.Chunker.WriteBatch, logger)
	files := service.NewFileService(b, chunks, writer, service.Options{
		ChunkSize:      cfg.Chunker.ChunkSize,
		MaxOutstanding: cfg.Chunker.MaxOutstanding,
	}, nil, logger)

	cleanup := func() { b.Close() }
	return &stack{backend: b, chunks: chunks, files: files}, cleanup, nil
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, domain.ErrNameNotFound) ||
		errors.Is(err, domain.ErrVersionNotFound) ||
		errors.Is(err, domain.ErrNoVersions) ||
		errors.Is(err, domain.ErrObjectNotFound) {
		return exitNotFound
	}
	return exitError
}

func cmdPut(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: cascade put [flags] <name> <file>")
		return exitUsage
	}
	name, path := fs.Arg(0), fs.Arg(1)

	st, cleanup, err := openStack(ctx, cf)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	version, err := st.files.WriteFull(ctx, name, f)
	if err != nil {
		return fail(err)
	}
	fmt.Println(version)
	return exitOK
}

func cmdGet(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	cf := registerCommon(fs)
	version := fs.String("version", service.HeadVersionKey, "version key to read")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: cascade get [flags] <name> <file>")
		return exitUsage
	}
	name, path := fs.Arg(0), fs.Arg(1)

	st, cleanup, err := openStack(ctx, cf)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	f, err := os.Create(path)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	size, err := st.files.ReadFull(ctx, name, *version, f)
	if err != nil {
		return fail(err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "%d bytes\n", size)
	return exitOK
}

func cmdRead(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	cf := registerCommon(fs)
	version := fs.String("version", service.HeadVersionKey, "version key to read")
	offset := fs.Uint64("offset", 0, "byte offset to start at")
	length := fs.Uint64("length", 0, "bytes to read (0 = to end of file)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: cascade read [flags] <name>")
		return exitUsage
	}
	name := fs.Arg(0)

	st, cleanup, err := openStack(ctx, cf)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	n := *length
	if n == 0 {
		size, err := st.files.Size(ctx, name, *version)
		if err != nil {
			return fail(err)
		}
		if size > *offset {
			n = size - *offset
		}
	}

	data, err := st.files.Read(ctx, name, *version, *offset, n)
	if err != nil {
		return fail(err)
	}
	os.Stdout.Write(data)
	return exitOK
}

func cmdLs(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	st, cleanup, err := openStack(ctx, cf)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	// Without a name, list names; with one, list its versions.
	if fs.NArg() == 0 {
		names, err := st.files.Names(ctx)
		if err != nil {
			return fail(err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return exitOK
	}

	versions, err := st.files.Versions(ctx, fs.Arg(0))
	if err != nil {
		return fail(err)
	}
	for _, v := range versions {
		fmt.Printf("%s\t%s\n", v.Key, v.Recipe.Digest)
	}
	return exitOK
}

func cmdRm(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	cf := registerCommon(fs)
	version := fs.String("version", service.HeadVersionKey, "version key to remove, or ALL")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: cascade rm [flags] <name>")
		return exitUsage
	}
	name := fs.Arg(0)

	st, cleanup, err := openStack(ctx, cf)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	if *version == "ALL" {
		if err := st.files.RemoveAllVersions(ctx, name); err != nil {
			return fail(err)
		}
		return exitOK
	}
	if err := st.files.RemoveVersion(ctx, name, *version); err != nil {
		return fail(err)
	}
	return exitOK
}

func cmdObjects(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("objects", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)

	st, cleanup, err := openStack(ctx, cf)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	objects, err := st.chunks.List(ctx)
	if err != nil {
		return fail(err)
	}
	for _, obj := range objects {
		fmt.Printf("%s\t%d\n", obj.Key, obj.RefCount)
	}
	return exitOK
}

func cmdInfo(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	cf := registerCommon(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: cascade info [flags] <digest>")
		return exitUsage
	}
	digest := fs.Arg(0)
	if !domain.ValidDigest(digest) {
		fmt.Fprintln(os.Stderr, "Error: malformed digest")
		return exitUsage
	}

	st, cleanup, err := openStack(ctx, cf)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	meta, err := st.chunks.Info(ctx, domain.Fingerprint{
		Algorithm: domain.AlgorithmSHA256,
		Digest:    digest,
	})
	if err != nil {
		return fail(err)
	}
	fmt.Printf("compression: %s\n", meta.Compression)
	fmt.Printf("orig_size:   %d\n", meta.OrigSize)
	fmt.Printf("fp_algo:     %s\n", meta.Algorithm)
	fmt.Printf("lib:         %s\n", meta.Library)
	fmt.Printf("ref_count:   %d\n", meta.RefCount)
	return exitOK
}

func printUsage() {
	fmt.Println(`Cascade CLI

Usage:
  cascade <command> [flags] [arguments]

Commands:
  put          Store a file as a new version of a name
  get          Reassemble a version into a local file
  read         Print a byte range of a version to stdout
  ls           List names, or the versions of one name
  rm           Remove one version of a name, or ALL
  objects      List CAS objects with refcounts
  info         Show a CAS object's metadata
  compressors  List supported compression identifiers
  version      Print version information
  help         Show this help message

Examples:
  cascade put backup.img /var/backups/disk.img
  cascade get backup.img ./restored.img --version 1735689600000
  cascade read backup.img --offset 4096 --length 512
  cascade ls backup.img
  cascade rm backup.img --version ALL

Use "cascade <command> --help" for more information about a command.`)
}
