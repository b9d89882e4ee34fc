// Lunar CLI - snapshot tooling for the Lunar heap binding layer
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/lunarlang/lunar/bind"
	"github.com/lunarlang/lunar/config"
	"github.com/lunarlang/lunar/snapshot"
	"github.com/lunarlang/lunar/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("lunar.cli")

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = quiet)")
	storePath := flag.String("store", "", "Snapshot database path (overrides lunar.toml)")
	chdir := flag.String("C", ".", "Directory to resolve lunar.toml from")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lunar [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  put <name> <file.toml>   Store a TOML document as a snapshot\n")
		fmt.Fprintf(os.Stderr, "  dump <name>              Print a stored snapshot\n")
		fmt.Fprintf(os.Stderr, "  list                     List stored snapshots\n")
		fmt.Fprintf(os.Stderr, "  del <name>               Delete a stored snapshot\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.FindAndLoad(*chdir)
	if err != nil {
		fatal(err)
	}
	if cfg == nil {
		cfg = config.Default(*chdir)
	}
	dbPath := cfg.StorePath()
	if *storePath != "" {
		dbPath = *storePath
	}

	store, err := snapshot.OpenStore(dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	switch args[0] {
	case "put":
		if len(args) != 3 {
			fatal(fmt.Errorf("usage: lunar put <name> <file.toml>"))
		}
		err = runPut(store, cfg, args[1], args[2])
	case "dump":
		if len(args) != 2 {
			fatal(fmt.Errorf("usage: lunar dump <name>"))
		}
		err = runDump(store, cfg, args[1])
	case "list":
		err = runList(store)
	case "del":
		if len(args) != 2 {
			fatal(fmt.Errorf("usage: lunar del <name>"))
		}
		err = store.Delete(args[1])
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// collect runs a heap collection when the configuration asks for one.
// The CLI performs a single snapshot operation per invocation, so any
// positive gc-every setting collects once.
func collect(s *vm.State, cfg *config.Config) {
	if cfg.VM.GCEvery <= 0 {
		return
	}
	stats := s.CollectGarbage()
	log.Debugf("collected %d objects", stats.TotalSwept)
}

// runPut parses a TOML document, materializes it as a table, and stores
// its snapshot under name.
func runPut(store *snapshot.Store, cfg *config.Config, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse error in %s: %w", path, err)
	}

	s := vm.NewState()
	defer s.Close()

	root, err := bind.New(s, doc)
	if err != nil {
		return err
	}
	defer root.Release()

	image, err := snapshot.Marshal(root)
	if err != nil {
		return err
	}
	if err := store.Save(name, image); err != nil {
		return err
	}
	collect(s, cfg)

	fmt.Printf("%s: %d bytes\n", name, len(image))
	return nil
}

// runDump loads a snapshot and prints its table tree via cursor walks.
func runDump(store *snapshot.Store, cfg *config.Config, name string) error {
	data, err := store.Load(name)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return fmt.Errorf("no snapshot named %q", name)
		}
		return err
	}

	s := vm.NewState()
	defer s.Close()

	root, err := snapshot.Unmarshal(s, data)
	if err != nil {
		return err
	}
	defer root.Release()
	collect(s, cfg)

	return dumpRef(root, 0)
}

func dumpRef(r *bind.Ref, depth int) error {
	if r.Type() != vm.TypeTable {
		v, err := r.Go()
		if err != nil {
			return err
		}
		fmt.Println(formatScalar(v))
		return nil
	}
	if depth > 16 {
		fmt.Println("{...}")
		return nil
	}

	cur, err := r.Iter()
	if err != nil {
		return err
	}
	defer cur.Release()

	fmt.Println("{")
	indent := strings.Repeat("  ", depth+1)
	for cur.Valid() {
		key, err := cur.Key()
		if err != nil {
			return err
		}
		val, err := cur.Value()
		if err != nil {
			key.Release()
			return err
		}

		kv, err := key.Go()
		if err == nil {
			fmt.Printf("%s%s = ", indent, formatScalar(kv))
			if val.Type() == vm.TypeTable {
				err = dumpRef(val, depth+1)
			} else {
				var vv any
				vv, err = val.Go()
				if err == nil {
					fmt.Println(formatScalar(vv))
				}
			}
		}
		key.Release()
		val.Release()
		if err != nil {
			return err
		}
		if err := cur.Next(); err != nil {
			return err
		}
	}
	fmt.Printf("%s}\n", strings.Repeat("  ", depth))
	return nil
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func runList(store *snapshot.Store) error {
	infos, err := store.List()
	if err != nil {
		return err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	for _, info := range infos {
		fmt.Printf("%-30s %8d  %s\n", info.Name, info.Size, info.Created.Format(time.RFC3339))
	}
	return nil
}
