package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/stratagem-engine/stratagem/pkg/api"
	"github.com/stratagem-engine/stratagem/pkg/dispatch"
	"github.com/stratagem-engine/stratagem/pkg/log"
	"github.com/stratagem-engine/stratagem/pkg/replay"
	"github.com/stratagem-engine/stratagem/pkg/repositories"
	"github.com/stratagem-engine/stratagem/pkg/savegame"
	"github.com/stratagem-engine/stratagem/pkg/session"
	"github.com/stratagem-engine/stratagem/pkg/version"
)

// replayer loads a saved session and fast-forwards its recorded history to
// a target turn and faction, verifying that every command still validates
// and executes against the rebuilt world.
func main() {
	savePath := flag.String("save", "", "Path to a save file")
	dbPath := flag.String("db", "", "Path to a SQLite save database")
	sessionID := flag.String("session-id", "", "Session ID to load from the database")
	targetTurn := flag.Int("turn", -1, "Turn to fast-forward to (-1 for the save's final turn)")
	targetFaction := flag.Int("faction", 0, "Faction to fast-forward to")
	apiPort := flag.Int("api-port", 0, "Port for the status API (0 to disable)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting replayer version %s", version.Get())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repository repositories.Repository
	if *dbPath != "" {
		repository, err = repositories.NewSQLiteRepository(ctx, *dbPath)
		if err != nil {
			panic(fmt.Sprintf("Failed to open save database: %v", err))
		}
		defer repository.Close(ctx)
	} else if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		repository, err = repositories.NewPostgresRepository(ctx, connStr)
		if err != nil {
			panic(fmt.Sprintf("Failed to connect to save database: %v", err))
		}
		defer repository.Close(ctx)
	}

	snapshot, err := loadSnapshot(ctx, repository, *savePath, *sessionID)
	if err != nil {
		panic(fmt.Sprintf("Failed to load save: %v", err))
	}

	runner := dispatch.NewRunner(dispatch.NewRunnerOptions{})
	runtime := session.NewRuntime(session.NewRuntimeOptions{
		Runner: runner,
	})
	go runner.RunControlLoop(ctx)

	opts, err := snapshot.OpenOptions()
	if err != nil {
		panic(fmt.Sprintf("Failed to restore session: %v", err))
	}
	s := runtime.Open(opts)
	log.Info("Loaded session %s with %d commands", s.Name, s.History().Len())

	turn := *targetTurn
	if turn < 0 {
		turn = s.World().Turn()
	}

	// The engine transitions Skip back to Play when the fast-forward target
	// is hit, so a Play observed after Skip means success; a Stop without
	// that transition means the history ran out first.
	result := make(chan replayResult, 1)
	var engine *replay.Engine
	var prev replay.State
	engine = replay.NewEngine(replay.NewEngineOptions{
		Runtime: runtime,
		OnMessage: func(msg string) {
			log.Info("%s", msg)
		},
		OnStateChanged: func(state replay.State) {
			switch state {
			case replay.StatePlay:
				if prev == replay.StateSkip {
					world := runtime.Current().World()
					result <- replayResult{
						reached:  true,
						turn:     world.Turn(),
						faction:  world.ActiveFaction(),
						commands: engine.CommandIndex(),
					}
					engine.Stop()
				}
			case replay.StateStop:
				select {
				case result <- replayResult{}:
				default:
				}
			}
			prev = state
		},
	})

	if *apiPort > 0 {
		apiServer := api.NewAPIServer(api.NewAPIServerOptions{
			Port:       *apiPort,
			Runtime:    runtime,
			Engine:     engine,
			Repository: repository,
		})
		go apiServer.Start()
		defer apiServer.Stop(ctx)
	}

	if err := engine.StartAt(ctx, turn, *targetFaction); err != nil {
		panic(fmt.Sprintf("Failed to start replay: %v", err))
	}

	res := <-result
	if !res.reached {
		log.Error("History ended before turn %d, faction %d", turn, *targetFaction)
		os.Exit(1)
	}
	log.Info("Reached turn %d, faction %d after %d commands", res.turn, res.faction, res.commands)
}

type replayResult struct {
	reached  bool
	turn     int
	faction  int
	commands int
}

func loadSnapshot(ctx context.Context, repository repositories.Repository, savePath, sessionID string) (*savegame.Snapshot, error) {
	if savePath != "" {
		return savegame.ReadFile(savePath)
	}
	if repository == nil {
		return nil, fmt.Errorf("either -save or a save database must be provided")
	}
	if sessionID == "" {
		// Without an explicit ID, the most recent save is used.
		summaries, err := repository.ListSaves(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list saves: %v", err)
		}
		if len(summaries) == 0 {
			return nil, fmt.Errorf("no saves found")
		}
		return repository.LoadSnapshot(ctx, summaries[0].SessionID)
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session id: %v", err)
	}
	return repository.LoadSnapshot(ctx, id)
}
