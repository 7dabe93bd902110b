package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/dbconfig"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/teamdefaults"
)

type summary struct {
	total, inserted, replaced, skipped int
}

func main() {
	var (
		seedPath string
		backend  string
		filePath string
		force    bool
	)

	flagSet := pflag.NewFlagSet("seed_team_defaults", pflag.ContinueOnError)
	flagSet.StringVar(&seedPath, "seed", "go/internal/assets/team_defaults.yaml", "YAML or JSON file mapping team keys to defaults")
	flagSet.StringVar(&backend, "backend", "file", "team defaults store to seed: file or postgres")
	flagSet.StringVar(&filePath, "path", "teamDefaults.json", "team defaults file when --backend=file")
	flagSet.BoolVar(&force, "force", false, "replace defaults of teams that already have them")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "parse flags: %v\n", err)
		os.Exit(2)
	}

	// 1) Load the seed document
	data, err := os.ReadFile(seedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read seed: %v\n", err)
		os.Exit(1)
	}
	seed, err := parseSeed(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse seed: %v\n", err)
		os.Exit(1)
	}

	// 2) Open the store
	ctx := context.Background()
	var store teamdefaults.Store
	switch backend {
	case "postgres":
		pg, err := teamdefaults.NewPostgresStore(ctx, dbconfig.NewConfigFromEnv())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	case "file":
		store = teamdefaults.NewFileStore(filePath)
	default:
		fmt.Fprintf(os.Stderr, "unknown backend %q\n", backend)
		os.Exit(2)
	}

	// 3) Merge and count
	s, err := seedStore(ctx, store, seed, force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Team defaults seed complete: %d total, %d inserted, %d replaced, %d skipped\n",
		s.total, s.inserted, s.replaced, s.skipped,
	)
}

// parseSeed decodes a YAML (or JSON) document using the JSON field names of
// the team defaults.
func parseSeed(data []byte) (map[string]models.TeamDefaults, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}
	seed := make(map[string]models.TeamDefaults)
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("unmarshal team defaults: %w", err)
	}
	return seed, nil
}

func seedStore(ctx context.Context, store teamdefaults.Store, seed map[string]models.TeamDefaults, force bool) (summary, error) {
	existing, err := store.Load(ctx)
	if err != nil {
		return summary{}, err
	}
	if existing == nil {
		existing = make(map[string]models.TeamDefaults)
	}

	s := summary{total: len(seed)}
	for key, d := range seed {
		if _, ok := existing[key]; ok {
			if !force {
				s.skipped++
				continue
			}
			s.replaced++
		} else {
			s.inserted++
		}
		existing[key] = d
	}

	if s.inserted+s.replaced == 0 {
		return s, nil
	}
	return s, store.Save(ctx, existing)
}
