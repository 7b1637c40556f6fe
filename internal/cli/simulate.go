package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/db"
	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/layout"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/repository/sqlite"
	"github.com/vytor/gazetest/internal/roundset"
	"github.com/vytor/gazetest/internal/session"
	"github.com/vytor/gazetest/internal/storage"
)

type simulateOptions struct {
	catalog      string
	folders      []string
	emotion      string
	version      string
	difficulty   string
	rounds       int
	seed         uint64
	accuracy     float64
	samplesRound int
	dbPath       string
	blobDir      string
}

var simOpts simulateOptions

// simContainer is where the simulated page draws its stimuli.
var simContainer = coords.Rect{Left: 40, Top: 80, Width: 750, Height: 550}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted test session end to end",
	Long: `Build rounds from a catalog, play them with a simulated participant and
finalize the result into a database and blob directory.

The participant looks around the layout and picks the target with the given
accuracy. Everything is driven by a manual clock, so a seed always replays the
same session.

Examples:
  gazetest simulate --catalog data/catalog.yaml --folders AF01,AM02 --rounds 3
  gazetest simulate --catalog data/catalog.yaml --folders AF01 --accuracy 0.5 --seed 42`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.StringVar(&simOpts.catalog, "catalog", "data/catalog.yaml", "stimulus catalog (YAML)")
	f.StringSliceVar(&simOpts.folders, "folders", nil, "catalog folders to use, in order (default: all)")
	f.StringVar(&simOpts.emotion, "emotion", "Alegría", "target emotion")
	f.StringVar(&simOpts.version, "version", "a", "image version (a or b)")
	f.StringVar(&simOpts.difficulty, "difficulty", roundset.DifficultyHard, "facil or dificil")
	f.IntVar(&simOpts.rounds, "rounds", 2, "rounds per folder")
	f.Uint64Var(&simOpts.seed, "seed", 1, "random seed")
	f.Float64Var(&simOpts.accuracy, "accuracy", 0.8, "probability of picking the target")
	f.IntVar(&simOpts.samplesRound, "samples", 20, "gaze samples per round")
	f.StringVar(&simOpts.dbPath, "db", ":memory:", "SQLite database path")
	f.StringVar(&simOpts.blobDir, "blob-dir", "", "directory for round CSVs (default: a temp dir)")
}

// manualClock only moves when the simulation advances it.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func runSimulate(cmd *cobra.Command, args []string) error {
	o := simOpts
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.accuracy < 0 || o.accuracy > 1 {
		return fmt.Errorf("accuracy must be between 0 and 1")
	}
	if o.samplesRound < 0 {
		return fmt.Errorf("samples must not be negative")
	}

	catalog, err := roundset.LoadCatalog(o.catalog)
	if err != nil {
		return err
	}
	folders := o.folders
	if len(folders) == 0 {
		folders = catalog.Folders()
	}
	defs, err := roundset.Build(catalog, roundset.Params{
		Folders:    folders,
		Emotion:    o.emotion,
		Version:    o.version,
		Difficulty: o.difficulty,
		Rounds:     o.rounds,
	}, layout.NewSource(o.seed))
	if err != nil {
		return err
	}

	database, err := db.Open(o.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	blobDir := o.blobDir
	if blobDir == "" {
		blobDir, err = os.MkdirTemp("", "gazetest-sim-")
		if err != nil {
			return err
		}
	}
	blobs, err := storage.NewFSStore(blobDir, []byte("gazetest-simulate"))
	if err != nil {
		return err
	}

	sessions := sqlite.NewSessionRepository(database.DB)
	results := sqlite.NewResultRepository(database.DB)

	clock := &manualClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	id := uuid.NewString()
	if err := sessions.Insert(ctx, models.Session{
		ID:        id,
		Name:      "simulation",
		Kind:      "caras",
		Status:    models.SessionPending,
		Rounds:    defs,
		CreatedAt: clock.Now(),
	}); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if err := sessions.MarkStarted(ctx, id, clock.Now()); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	var (
		record   session.Record
		finished bool
	)
	sess := session.New(id,
		session.WithClock(clock),
		session.WithPreview(0),
		session.WithSource(layout.NewSource(o.seed)),
		session.WithContainer(simContainer),
		session.WithContext(ctx),
		session.OnFinished(func(_ context.Context, rec session.Record) {
			record = rec
			finished = true
		}),
	)
	defer sess.Close()

	if err := sess.Start(defs); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	behavior := layout.NewSource(o.seed + 1)
	for i, def := range defs {
		clock.advance(time.Second)
		if err := sess.Skip(); err != nil {
			return fmt.Errorf("round %d: %w", i+1, err)
		}
		snap := sess.Snapshot()

		for n := 0; n < o.samplesRound; n++ {
			clock.advance(150 * time.Millisecond)
			sess.IngestAbsolute(gazeAt(snap.Placements, behavior), clock.Now())
		}
		clock.advance(time.Duration(200+behavior.IntN(600)) * time.Millisecond)

		choice := def.TargetID
		if behavior.Float64() >= o.accuracy {
			choice = distractor(def, behavior)
		}
		res, err := sess.Respond(choice)
		if err != nil {
			return fmt.Errorf("round %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "round %-3d folder=%-6s picked=%-6s %s in %dms\n",
			res.Round, def.Folder, choice, res.Outcome, res.ReactionTimeMs)
	}
	if !finished {
		return fmt.Errorf("session did not finish: phase=%s", sess.Snapshot().Phase)
	}

	finalizer := finalize.New(blobs, results, sessions, finalize.WithNow(clock.Now))
	report, err := finalizer.Finalize(ctx, record)
	if err != nil {
		return fmt.Errorf("finalize failed: %w", err)
	}

	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "session   %s\n", id)
	fmt.Fprintf(out, "blobs     %s\n", blobDir)
	fmt.Fprintf(out, "correct   %d\n", report.Summary.CorrectCount)
	fmt.Fprintf(out, "errors    %d\n", report.Summary.ErrorCount)
	fmt.Fprintf(out, "duration  %.0fs\n", report.Summary.DurationSec)
	if report.Degraded() {
		fmt.Fprintf(out, "lost      %d round files\n", len(report.FailedRounds))
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, report.ReactionLog)
	return nil
}

// gazeAt returns a viewport point inside a random placement, or anywhere in
// the container when there are none.
func gazeAt(placements []models.Placement, src layout.Source) coords.Point {
	rel := coords.Point{X: src.Float64(), Y: src.Float64()}
	if len(placements) > 0 {
		p := placements[src.IntN(len(placements))]
		rel = coords.Point{
			X: p.Left + src.Float64()*p.Width,
			Y: p.Top + src.Float64()*p.Height,
		}
	}
	return coords.Point{
		X: simContainer.Left + rel.X*simContainer.Width,
		Y: simContainer.Top + rel.Y*simContainer.Height,
	}
}

func distractor(def models.RoundDefinition, src layout.Source) string {
	var others []string
	for _, s := range def.Stimuli {
		if s.ID != def.TargetID {
			others = append(others, s.ID)
		}
	}
	if len(others) == 0 {
		return def.TargetID
	}
	return others[src.IntN(len(others))]
}
