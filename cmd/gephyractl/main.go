package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"gephyra/internal/evo"
	"gephyra/internal/model"
	"gephyra/internal/platform"
	"gephyra/internal/storage"
	"gephyra/pkg/gephyra"
)

const (
	artifactsDir = "artifacts"
	exportsDir   = "exports"

	appVersion = "0.3.0"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "resume":
		return runResume(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "genome":
		return runGenome(ctx, args[1:])
	case "parse":
		return runParse(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "version":
		return runVersion(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gephyra.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := gephyra.New(gephyra.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s artifacts_dir=%s\n", *storeKind, artifactsDir)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gephyra.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := gephyra.New(gephyra.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "JSON run config; flat run_config.json keys or world/breeding sections")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	scapeName := fs.String("scape", platform.RiverScape, "scape name")
	rows := fs.Int("rows", 0, "grid rows (0 uses the scape default)")
	cols := fs.Int("cols", 0, "grid columns (0 uses the scape default)")
	steps := fs.Int("steps", 0, "episode length in ticks (0 uses the scape default)")
	populations := fs.Int("pops", 1, "co-evolving populations: 1 or 2")
	popSize := fs.Int("pop", evo.DefaultPopulationSize, "population size")
	tournament := fs.Int("tournament", evo.DefaultTournamentSize, "tournament size")
	generations := fs.Int("gens", evo.DefaultGenerations, "generation count")
	rationality := fs.Float64("rationality", 1.0, "probability a generation breeds by crossover")
	action := fs.String("action", string(evo.ActionGoalRational), "alternative breeding strategy: goal-rational|traditional|random")
	neuromodulation := fs.Bool("neuromodulation", false, "gate hidden layers by the genome's modulation flags")
	environments := fs.Int("environments", 1, "episodes per evaluation (above 1 alternates solo and paired)")
	consistentPartner := fs.Bool("consistent-partner", false, "pair members with live genomes instead of random partners")
	awareList := fs.String("aware", "", "comma separated awareness per population, e.g. true,false")
	seedList := fs.String("seeds", "", "comma separated master seeds per population")
	randomize := fs.Bool("randomize", false, "draw fresh seeds, ignoring -seeds")
	crossoverRate := fs.Float64("crossover", 0, "column crossover probability (0 uses the default 0.05)")
	mutationRate := fs.Float64("mutation", 0, "weight noise scale (0 uses the default 0.01)")
	modulationRate := fs.Float64("modulation", 0, "flag flip probability (0 uses the default 0.15)")
	flushEvery := fs.Int("flush-every", 0, "flush the generation log every N lines (0 uses the default)")
	quiet := fs.Bool("quiet", false, "suppress per-generation progress output")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gephyra.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	seeds, err := parseSeeds(*seedList)
	if err != nil {
		return err
	}
	aware, err := parseAware(*awareList)
	if err != nil {
		return err
	}

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = gephyra.RunRequest{
			RunID:             *runID,
			Scape:             *scapeName,
			Rows:              *rows,
			Cols:              *cols,
			TimeSteps:         *steps,
			Populations:       *populations,
			PopulationSize:    *popSize,
			TournamentSize:    *tournament,
			Generations:       *generations,
			GoalRationality:   *rationality,
			Action:            *action,
			Neuromodulation:   *neuromodulation,
			Environments:      *environments,
			ConsistentPartner: *consistentPartner,
			Aware:             aware,
			Seeds:             seeds,
			Randomize:         *randomize,
			CrossoverRate:     *crossoverRate,
			MutationRate:      *mutationRate,
			ModulationRate:    *modulationRate,
			StatsFlushEvery:   *flushEvery,
		}
	} else {
		overrideFromFlags(&req, setFlags, map[string]any{
			"run-id":             *runID,
			"scape":              *scapeName,
			"rows":               *rows,
			"cols":               *cols,
			"steps":              *steps,
			"pops":               *populations,
			"pop":                *popSize,
			"tournament":         *tournament,
			"gens":               *generations,
			"rationality":        *rationality,
			"action":             *action,
			"neuromodulation":    *neuromodulation,
			"environments":       *environments,
			"consistent-partner": *consistentPartner,
			"aware":              aware,
			"seeds":              seeds,
			"randomize":          *randomize,
			"crossover":          *crossoverRate,
			"mutation":           *mutationRate,
			"modulation":         *modulationRate,
			"flush-every":        *flushEvery,
		})
	}
	// The completion line reports population, tournament and environment
	// counts, so resolve their engine defaults before the run.
	if req.PopulationSize == 0 {
		req.PopulationSize = evo.DefaultPopulationSize
	}
	if req.TournamentSize == 0 {
		req.TournamentSize = evo.DefaultTournamentSize
	}
	if req.Environments == 0 {
		req.Environments = 1
	}
	req.OnGeneration = progressPrinter(*quiet)

	client, err := gephyra.New(gephyra.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	started := time.Now()
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	// Each generation re-evaluates the drawn tournament plus the
	// offspring; the initial sweep scores the whole population once.
	episodes := int64(req.PopulationSize+summary.Generations*(req.TournamentSize+1)) * int64(req.Environments)

	fmt.Printf("run completed run_id=%s scape=%s pops=%d pop=%d gens=%d episodes=%s elapsed=%s\n",
		summary.RunID,
		summary.Scape,
		len(summary.Populations),
		req.PopulationSize,
		summary.Generations,
		humanize.Comma(episodes),
		time.Since(started).Round(time.Millisecond),
	)
	printPopulationSummaries(summary.Populations)
	fmt.Printf("artifacts_dir=%s\n", summary.ArtifactsDir)
	return nil
}

func runResume(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to continue from")
	latest := fs.Bool("latest", false, "continue the most recent run from the run index")
	rows := fs.Int("rows", 0, "grid rows (0 uses the scape default)")
	cols := fs.Int("cols", 0, "grid columns (0 uses the scape default)")
	steps := fs.Int("steps", 0, "episode length in ticks (0 uses the scape default)")
	generations := fs.Int("gens", 0, "additional generations (0 repeats the stored count)")
	seedList := fs.String("seeds", "", "comma separated master seeds per population")
	randomize := fs.Bool("randomize", false, "draw fresh seeds, ignoring -seeds")
	flushEvery := fs.Int("flush-every", 0, "flush the generation log every N lines (0 uses the default)")
	quiet := fs.Bool("quiet", false, "suppress per-generation progress output")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gephyra.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("resume requires --run-id or --latest")
	}

	seeds, err := parseSeeds(*seedList)
	if err != nil {
		return err
	}

	client, err := gephyra.New(gephyra.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if *latest {
		runs, err := client.Runs(ctx, gephyra.RunsRequest{Limit: 1})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return errors.New("no runs available to resume")
		}
		*runID = runs[0].RunID
	}

	started := time.Now()
	summary, err := client.Resume(ctx, gephyra.ResumeRequest{
		RunID:           *runID,
		Rows:            *rows,
		Cols:            *cols,
		TimeSteps:       *steps,
		Generations:     *generations,
		Seeds:           seeds,
		Randomize:       *randomize,
		StatsFlushEvery: *flushEvery,
		OnGeneration:    progressPrinter(*quiet),
	})
	if err != nil {
		return err
	}

	fmt.Printf("run resumed continued_from=%s run_id=%s gens=%d elapsed=%s\n",
		*runID,
		summary.RunID,
		summary.Generations,
		time.Since(started).Round(time.Millisecond),
	)
	printPopulationSummaries(summary.Populations)
	fmt.Printf("artifacts_dir=%s\n", summary.ArtifactsDir)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit the runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := gephyra.New(gephyra.Options{
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, gephyra.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID          string    `json:"run_id"`
			CreatedAtUTC   string    `json:"created_at_utc"`
			Scape          string    `json:"scape"`
			Populations    int       `json:"populations"`
			PopulationSize int       `json:"population_size"`
			Generations    int       `json:"generations"`
			Seeds          []int64   `json:"seeds"`
			FinalBest      []float64 `json:"final_best"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem{
				RunID:          r.RunID,
				CreatedAtUTC:   r.CreatedAtUTC,
				Scape:          r.Scape,
				Populations:    r.Populations,
				PopulationSize: r.PopulationSize,
				Generations:    r.Generations,
				Seeds:          r.Seeds,
				FinalBest:      r.FinalBest,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s age=%s scape=%s pops=%d pop=%d gens=%d seeds=%s final_best=%s\n",
			r.RunID,
			r.CreatedAtUTC,
			ageOf(r.CreatedAtUTC),
			r.Scape,
			r.Populations,
			r.PopulationSize,
			r.Generations,
			formatSeeds(r.Seeds),
			formatFitnesses(r.FinalBest),
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from the run index")
	jsonOut := fs.Bool("json", false, "emit the run detail as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gephyra.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("show requires --run-id or --latest")
	}

	client, err := gephyra.New(gephyra.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.ShowRun(ctx, gephyra.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	rec := detail.Record
	fmt.Printf("run_id=%s created_at=%s scape=%s pops=%d pop=%d gens=%d action=%s rationality=%.2f neuromodulation=%t environments=%d consistent_partner=%t aware=%s seeds=%s\n",
		rec.RunID,
		rec.CreatedAtUTC,
		rec.Scape,
		rec.Populations,
		rec.PopulationSize,
		rec.Generations,
		rec.Action,
		rec.GoalRationality,
		rec.Neuromodulation,
		rec.Environments,
		rec.ConsistentPartner,
		formatAware(rec.Aware),
		formatSeeds(rec.Seeds),
	)
	for _, d := range detail.Diagnostics {
		fmt.Printf("population=%d seed=%d best_fitness=%.6f mean=%.6f stddev=%.6f min=%.6f max=%.6f\n",
			d.Population,
			d.Seed,
			d.BestFitness,
			d.Fitness.Mean,
			d.Fitness.StdDev,
			d.Fitness.Min,
			d.Fitness.Max,
		)
	}
	if rec.ArtifactsDir != "" {
		fmt.Printf("artifacts_dir=%s\n", rec.ArtifactsDir)
	}
	return nil
}

func runGenome(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("genome", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	population := fs.Int("pop", 0, "population index")
	outPath := fs.String("out", "", "write the genome text to this file instead of stdout")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "gephyra.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("genome requires --run-id or --latest")
	}

	client, err := gephyra.New(gephyra.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.BestGenome(ctx, gephyra.BestGenomeRequest{
		RunID:      *runID,
		Latest:     *latest,
		Population: *population,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run_id=%s population=%d fitness=%.6f weights=%s\n",
		summary.RunID,
		summary.Population,
		summary.Fitness,
		humanize.Comma(weightCount(summary.Genome)),
	)
	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(summary.Text), 0o644); err != nil {
			return err
		}
		fmt.Printf("genome written to=%s\n", *outPath)
		return nil
	}
	fmt.Print(summary.Text)
	return nil
}

func runParse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	filePath := fs.String("file", "", "genome text file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *filePath == "" {
		return errors.New("parse requires -file")
	}

	client, err := gephyra.New(gephyra.Options{
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	genomes, err := client.ParseGenomes(ctx, *filePath)
	if err != nil {
		return err
	}

	fmt.Printf("parsed file=%s genomes=%d\n", *filePath, len(genomes))
	for i, g := range genomes {
		fmt.Printf("genome=%d layers=%s weights=%s\n",
			i,
			formatLayers(layerSizesOf(g)),
			humanize.Comma(weightCount(g)),
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from the run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := gephyra.New(gephyra.Options{
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.ExportRun(ctx, gephyra.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	schema := model.DefaultSchema()
	fmt.Printf("gephyractl version=%s schema=%s store_schema=%d codec=%d\n",
		appVersion,
		formatLayers(schema.LayerSizes),
		storage.CurrentSchemaVersion,
		storage.CurrentCodecVersion,
	)
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gephyractl <init|reset|run|resume|runs|show|genome|parse|export|version> [flags]", msg)
}

// progressPrinter reports each generation's best tournament fitness.
// Silent when stdout is not a terminal so piped output stays clean.
func progressPrinter(quiet bool) func(int, model.GenerationRecord) {
	if quiet || !isatty.IsTerminal(os.Stdout.Fd()) {
		return nil
	}
	return func(population int, record model.GenerationRecord) {
		fmt.Printf("population=%d generation=%d best=%.4f\n",
			population, record.Generation, record.CumulativeFitness)
	}
}

func printPopulationSummaries(populations []gephyra.PopulationSummary) {
	for _, p := range populations {
		fmt.Printf("population=%d seed=%d best_fitness=%.6f mean=%.6f stddev=%.6f min=%.6f max=%.6f\n",
			p.Population,
			p.Seed,
			p.BestFitness,
			p.MeanFitness,
			p.StdDev,
			p.MinFitness,
			p.MaxFitness,
		)
	}
}

func parseSeeds(list string) ([]int64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	seeds := make([]int64, 0, len(parts))
	for _, part := range parts {
		seed, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", part, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func parseAware(list string) ([]bool, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	aware := make([]bool, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseBool(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid aware flag %q: %w", part, err)
		}
		aware = append(aware, value)
	}
	return aware, nil
}

func formatSeeds(seeds []int64) string {
	parts := make([]string, len(seeds))
	for i, s := range seeds {
		parts[i] = strconv.FormatInt(s, 10)
	}
	return strings.Join(parts, ",")
}

func formatAware(aware []bool) string {
	parts := make([]string, len(aware))
	for i, a := range aware {
		parts[i] = strconv.FormatBool(a)
	}
	return strings.Join(parts, ",")
}

func formatFitnesses(fitnesses []float64) string {
	if len(fitnesses) == 0 {
		return "n/a"
	}
	parts := make([]string, len(fitnesses))
	for i, f := range fitnesses {
		parts[i] = strconv.FormatFloat(f, 'f', 4, 64)
	}
	return strings.Join(parts, ",")
}

func formatLayers(sizes []int) string {
	parts := make([]string, len(sizes))
	for i, n := range sizes {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "-")
}

// layerSizesOf reconstructs the layer schedule from a genome's weight
// matrix shapes.
func layerSizesOf(g model.Genome) []int {
	if len(g.Weights) == 0 {
		return nil
	}
	sizes := make([]int, 0, len(g.Weights)+1)
	sizes = append(sizes, len(g.Weights[0]))
	for _, w := range g.Weights {
		if len(w) == 0 {
			sizes = append(sizes, 0)
			continue
		}
		sizes = append(sizes, len(w[0]))
	}
	return sizes
}

func weightCount(g model.Genome) int64 {
	var count int64
	for _, w := range g.Weights {
		for _, row := range w {
			count += int64(len(row))
		}
	}
	return count
}

// ageOf renders an RFC3339 stamp as a relative age for the runs listing.
func ageOf(createdAtUTC string) string {
	t, err := time.Parse(time.RFC3339, createdAtUTC)
	if err != nil {
		return "unknown"
	}
	return humanize.Time(t)
}
