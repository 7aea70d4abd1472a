// Command posixfsctl is a minimal entrypoint exercising the façade and the
// content-addressable store from the command line: "glob"/"grep"/"find"
// run a driver over a scratch in-memory filesystem seeded from a real
// directory tree, and "cas put/get/gc" drive internal/cas directly. CLI
// parsing stays on the standard flag package; the surface is small enough
// that a CLI framework would be pure ceremony.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/cas"
	"github.com/posixfs/posixfs/internal/cascache"
	"github.com/posixfs/posixfs/internal/config"
	"github.com/posixfs/posixfs/internal/filesystem"
	"github.com/posixfs/posixfs/internal/find"
	"github.com/posixfs/posixfs/internal/fuseadapter"
	"github.com/posixfs/posixfs/internal/glob"
	"github.com/posixfs/posixfs/internal/grep"
	"github.com/posixfs/posixfs/internal/health"
	"github.com/posixfs/posixfs/internal/metrics"
	"github.com/posixfs/posixfs/internal/objectstore"
	objmem "github.com/posixfs/posixfs/internal/objectstore/memory"
	objs3 "github.com/posixfs/posixfs/internal/objectstore/s3"
	"github.com/posixfs/posixfs/internal/pattern"
	"github.com/posixfs/posixfs/internal/tier"
	"github.com/posixfs/posixfs/pkg/logutil"
)

const posixfsctlVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logLevel := os.Getenv("POSIXFSCTL_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "warn"
	}
	logger, err := logutil.Setup(logLevel, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "posixfsctl: %v\n", err)
		os.Exit(1)
	}

	var cmdErr error
	switch os.Args[1] {
	case "glob":
		cmdErr = runGlob(os.Args[2:])
	case "grep":
		cmdErr = runGrep(os.Args[2:])
	case "find":
		cmdErr = runFind(os.Args[2:])
	case "cas":
		cmdErr = runCas(os.Args[2:])
	case "health":
		cmdErr = runHealth(os.Args[2:])
	case "serve":
		cmdErr = runServe(os.Args[2:])
	case "mount":
		cmdErr = runMount(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		logger.Error("posixfsctl: command failed", "error", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: posixfsctl <command> [flags]

commands:
  glob -import DIR -pattern PATTERN [-pattern PATTERN ...]
  grep -import DIR -pattern REGEX [-recursive]
  find -import DIR [-name GLOB] [-type f|d]
  cas put -base DIR -file PATH
  cas get -base DIR -hash HASH
  cas gc  -base DIR
  health
  serve [-addr :8080]
  mount -import DIR [-tiered] [-config FILE] [-s3-bucket BUCKET] MOUNTPOINT`)
}

// loadConfiguration builds the hierarchical Configuration
// (internal/config) that parameterizes the tiered backend: compiled-in
// defaults, optionally overlaid with a YAML file, then with POSIXFS_*
// environment variables, validated once before use.
func loadConfiguration(path string) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// importTree loads the real directory at hostDir into a backend rooted at
// "/", so glob/grep/find can run over it the same way they would over a
// mounted filesystem. tiered selects the tiered page/CAS backend
// (internal/backend.TieredBackend) over the plain in-memory reference
// backend, exercising the hot/warm/cold and CAS path for mounted content;
// cfg supplies its page/tier/CAS sizing when tiered is set (a nil cfg
// falls back to NewDefault()'s values), and cold, when non-nil, replaces
// the default in-process cold store with a remote object store.
func importTree(ctx context.Context, hostDir string, tiered bool, cfg *config.Configuration, cold objectstore.ObjectStoreClient) (*filesystem.Facade, error) {
	fcfg, err := config.NewFacadeConfig("/", false, "utf8", 0o644, 0, true)
	if err != nil {
		return nil, err
	}
	var be backend.Backend
	if tiered {
		if cfg == nil {
			cfg = config.NewDefault()
		}
		be, err = backend.NewTiered(backend.TieredOptions{
			Cold: cold,
			Tier: tier.Options{
				MaxHotPages:     cfg.Tier.MaxHotPages,
				AccessThreshold: cfg.Tier.AccessThreshold,
				Enabled:         cfg.Tier.Enabled,
			},
			CASBase:      filepath.Join(os.TempDir(), "posixfsctl-cas"),
			CASPrefixLen: cfg.CAS.PrefixLen,
			CASExistence: cascache.ExistenceCacheOptions{
				ExpectedItems:      uint(cfg.CAS.ExistenceCache.ExpectedItems),
				FalsePositiveRate:  cfg.CAS.ExistenceCache.FalsePositiveRate,
				PositiveTTL:        cfg.CAS.ExistenceCache.PositiveTTL,
				MaxPositiveEntries: cfg.CAS.ExistenceCache.MaxPositiveEntries,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("building tiered backend: %w", err)
		}
	} else {
		be = backend.NewMemory()
	}
	f := filesystem.New(fcfg, be)

	err = filepath.WalkDir(hostDir, func(hostPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(hostDir, hostPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		virtPath := filepath.ToSlash(rel)
		if d.IsDir() {
			return f.Mkdir(ctx, virtPath, backend.MkdirOptions{Mode: 0o755, Recursive: true})
		}
		data, err := os.ReadFile(hostPath)
		if err != nil {
			return err
		}
		_, _, err = f.WriteFile(ctx, virtPath, data, backend.WriteOptions{Flag: "w"})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", hostDir, err)
	}
	return f, nil
}

type patternFlags []string

func (p *patternFlags) String() string { return fmt.Sprint([]string(*p)) }
func (p *patternFlags) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func runGlob(args []string) error {
	fset := flag.NewFlagSet("glob", flag.ExitOnError)
	importDir := fset.String("import", ".", "host directory to load into the scratch filesystem")
	var patterns patternFlags
	fset.Var(&patterns, "pattern", "glob pattern (repeatable)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if len(patterns) == 0 {
		return fmt.Errorf("glob: at least one -pattern is required")
	}

	ctx := context.Background()
	f, err := importTree(ctx, *importDir, false, nil, nil)
	if err != nil {
		return err
	}
	result, err := f.Glob(ctx, glob.DefaultOptions(patterns, ""))
	if err != nil {
		return err
	}
	for _, p := range result.Paths {
		fmt.Println(p)
	}
	return nil
}

func runGrep(args []string) error {
	fset := flag.NewFlagSet("grep", flag.ExitOnError)
	importDir := fset.String("import", ".", "host directory to load into the scratch filesystem")
	pattern := fset.String("pattern", "", "regular expression to search for")
	recursive := fset.Bool("recursive", true, "recurse into subdirectories")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *pattern == "" {
		return fmt.Errorf("grep: -pattern is required")
	}

	ctx := context.Background()
	f, err := importTree(ctx, *importDir, false, nil, nil)
	if err != nil {
		return err
	}
	matches, err := f.Grep(ctx, grep.Options{Pattern: *pattern, IsRegex: true, Recursive: *recursive})
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Printf("%s:%d:%s\n", m.Path, m.Line, m.Text)
	}
	return nil
}

func runFind(args []string) error {
	fset := flag.NewFlagSet("find", flag.ExitOnError)
	importDir := fset.String("import", ".", "host directory to load into the scratch filesystem")
	name := fset.String("name", "", "name glob")
	typ := fset.String("type", "", "entry type filter: f or d")
	if err := fset.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	f, err := importTree(ctx, *importDir, false, nil, nil)
	if err != nil {
		return err
	}
	result, err := f.Find(ctx, find.Options{StartPath: "", Name: *name, Type: *typ, MaxDepth: -1})
	if err != nil {
		return err
	}
	for _, e := range result.Entries {
		fmt.Println(e.Path)
	}
	return nil
}

func runCas(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("cas: subcommand required (put, get, gc)")
	}
	switch args[0] {
	case "put":
		return runCasPut(args[1:])
	case "get":
		return runCasGet(args[1:])
	case "gc":
		return runCasGC(args[1:])
	default:
		return fmt.Errorf("cas: unknown subcommand %q", args[0])
	}
}

func openCachedStore(base string) (*cascache.CachedStore, error) {
	return cascache.NewCachedStore(
		cas.Options{Base: base},
		cascache.DefaultExistenceCacheOptions(),
		nil,
	)
}

func runCasPut(args []string) error {
	fset := flag.NewFlagSet("cas put", flag.ExitOnError)
	base := fset.String("base", "", "CAS store base directory")
	file := fset.String("file", "", "file to store")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *base == "" || *file == "" {
		return fmt.Errorf("cas put: -base and -file are required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	store, err := openCachedStore(*base)
	if err != nil {
		return err
	}
	hash, _, err := store.Put(data, cas.TypeBlob)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runCasGet(args []string) error {
	fset := flag.NewFlagSet("cas get", flag.ExitOnError)
	base := fset.String("base", "", "CAS store base directory")
	hash := fset.String("hash", "", "object hash to fetch")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *base == "" || *hash == "" {
		return fmt.Errorf("cas get: -base and -hash are required")
	}
	store, err := openCachedStore(*base)
	if err != nil {
		return err
	}
	_, data, ok, err := store.Get(*hash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cas get: %s not found", *hash)
	}
	_, err = os.Stdout.Write(data)
	return err
}

// runCasGC reclaims objects whose refcount sidecar has decayed to zero
// without the store's own Delete having run the removal (e.g. after a
// crash between the sidecar write and the object unlink).
func runCasGC(args []string) error {
	fset := flag.NewFlagSet("cas gc", flag.ExitOnError)
	base := fset.String("base", "", "CAS store base directory")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *base == "" {
		return fmt.Errorf("cas gc: -base is required")
	}
	store, err := openCachedStore(*base)
	if err != nil {
		return err
	}

	reclaimed := 0
	err = filepath.WalkDir(*base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".refcount" {
			return err
		}
		hash := filepath.Base(path[:len(path)-len(".refcount")])
		shard := filepath.Base(filepath.Dir(path))
		full := shard + hash
		count, err := store.GetRefCount(full)
		if err != nil {
			return nil
		}
		if count <= 0 {
			if err := store.ForceDelete(full); err != nil {
				return err
			}
			reclaimed++
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("reclaimed %d object(s)\n", reclaimed)
	return nil
}

// runHealth registers liveness checks for the components a mounted
// filesystem depends on (the in-memory backend, the glob pattern cache,
// the hot/warm/cold tier manager, and the content-addressable store) and
// prints their status, exercising internal/health end to end.
func runHealth(args []string) error {
	fset := flag.NewFlagSet("health", flag.ExitOnError)
	asJSON := fset.Bool("json", false, "print a full health.ServiceStatus as JSON instead of a table")
	if err := fset.Parse(args); err != nil {
		return err
	}

	checker, err := health.NewChecker(&health.Config{
		Enabled: true,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	be := backend.NewMemory()
	err = checker.RegisterCheck("memory-backend", "in-memory backend root is reachable",
		health.CategoryStorage, health.PriorityCritical,
		health.BackendReachabilityCheck(be))
	if err != nil {
		return err
	}

	err = checker.RegisterCheck("pattern-cache", "glob pattern cache compiles a known-good pattern",
		health.CategoryCache, health.PriorityHigh,
		health.PatternCacheCheck(func(pat string) error {
			_, err := pattern.Global().Get(pat, pattern.Options{})
			return err
		}))
	if err != nil {
		return err
	}

	mgr := tier.NewManager(objmem.New(), tier.Options{Enabled: true, MaxHotPages: 1024, AccessThreshold: 3})
	err = checker.RegisterCheck("tier-capacity", "hot tier has headroom below its page ceiling",
		health.CategoryTier, health.PriorityLow,
		health.TierCapacityCheck(mgr.HotCount, 1024))
	if err != nil {
		return err
	}

	casStore, err := cas.New(cas.Options{Base: filepath.Join(os.TempDir(), "posixfsctl-health-cas")})
	if err != nil {
		return err
	}
	canaryHash, _, err := casStore.Put([]byte("posixfsctl-health-canary"), cas.TypeBlob)
	if err != nil {
		return err
	}
	err = checker.RegisterCheck("cas-integrity", "content-addressable store round-trips a canary object",
		health.CategoryCAS, health.PriorityHigh,
		health.CASIntegrityCheck(casStore.Has, casStore.GetRefCount, canaryHash))
	if err != nil {
		return err
	}

	results, err := checker.RunAllChecks(ctx)
	if err != nil {
		return err
	}

	if *asJSON {
		status := checker.NewServiceStatus(posixfsctlVersion, map[string]interface{}{
			"checks_run": len(results),
		})
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return err
		}
	} else {
		for name, result := range results {
			fmt.Printf("%-20s %-10s %s\n", name, result.Status, result.Message)
		}
	}

	if err := casStore.ForceDelete(canaryHash); err != nil {
		return err
	}
	if !checker.IsHealthy() {
		return fmt.Errorf("one or more health checks failed")
	}
	return nil
}

// runServe starts the Prometheus metrics/health HTTP endpoint
// (internal/metrics.Collector) and blocks until interrupted.
func runServe(args []string) error {
	fset := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fset.String("addr", ":8080", "listen address for /metrics and /health")
	if err := fset.Parse(args); err != nil {
		return err
	}
	port := 8080
	fmt.Sscanf(*addr, ":%d", &port)

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:        true,
		Port:           port,
		Path:           "/metrics",
		Namespace:      "posixfs",
		UpdateInterval: 30 * time.Second,
		Labels:         map[string]string{},
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := collector.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("serving metrics on %s\n", *addr)
	<-ctx.Done()
	return collector.Stop(context.Background())
}

// runMount imports a host directory into a backend and FUSE-mounts the
// resulting façade at the given mountpoint, blocking until interrupted.
func runMount(args []string) error {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	importDir := fset.String("import", ".", "host directory to load into the mounted filesystem")
	tiered := fset.Bool("tiered", false, "use the tiered page/CAS backend instead of the plain in-memory one")
	configPath := fset.String("config", "", "YAML config file sizing the tiered backend's page/tier/CAS settings (requires -tiered)")
	s3Bucket := fset.String("s3-bucket", "", "back the cold tier with this S3 bucket instead of process memory (requires -tiered)")
	s3Region := fset.String("s3-region", "", "AWS region for -s3-bucket")
	s3Endpoint := fset.String("s3-endpoint", "", "custom S3 endpoint (e.g. a MinIO address) for -s3-bucket")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("mount: a mountpoint argument is required")
	}
	mountPoint := fset.Arg(0)

	var cfg *config.Configuration
	if *tiered {
		var err error
		cfg, err = loadConfiguration(*configPath)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cold objectstore.ObjectStoreClient
	if *s3Bucket != "" {
		if !*tiered {
			return fmt.Errorf("mount: -s3-bucket requires -tiered")
		}
		var err error
		cold, err = objs3.New(ctx, *s3Bucket, objs3.Config{
			Region:         *s3Region,
			Endpoint:       *s3Endpoint,
			ForcePathStyle: *s3Endpoint != "",
			Retry:          cfg.Network.Retry.Policy(),
			CircuitBreaker: cfg.Network.CircuitBreaker.Options(),
		})
		if err != nil {
			return err
		}
	}

	f, err := importTree(ctx, *importDir, *tiered, cfg, cold)
	if err != nil {
		return err
	}

	mgr := fuseadapter.NewMountManager(f, mountPoint, fuseadapter.DefaultMountOptions())
	if err := mgr.Mount(); err != nil {
		return err
	}
	<-ctx.Done()
	return mgr.Unmount()
}
