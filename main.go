package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/peerbattler/battle"
	"github.com/RedPaladin7/peerbattler/p2p"
	"github.com/RedPaladin7/peerbattler/replay"
)

const (
	defaultVersion = "1.0.0"
	defaultP2PPort = "3000"
	defaultAPIPort = "8080"
)

func main() {
	var (
		p2pPort   = flag.String("p2p-port", defaultP2PPort, "P2P sync port")
		apiPort   = flag.String("api-port", defaultAPIPort, "HTTP control API port")
		connectTo = flag.String("connect", "", "Join an existing host (e.g., localhost:3000)")
		solo      = flag.Bool("solo", false, "Resolve a sandbox battle locally and replay it, no network")
		soloSeed  = flag.Int64("solo-seed", 42, "Battle seed for the solo sandbox")
		recordDir = flag.String("record-dir", "", "Directory to save battle records into (optional)")
		logLevel  = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		version   = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("Peer Battler v%s\n", defaultVersion)
		os.Exit(0)
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", *logLevel)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if *solo {
		runSolo(*soloSeed)
		return
	}

	p2pAddr := fmt.Sprintf("localhost:%s", *p2pPort)
	apiAddr := fmt.Sprintf("localhost:%s", *apiPort)

	// The replay controller for the battle currently on screen. Swapped
	// whole every round; the coordinator and the controller only ever meet
	// through the battle output handed to the sink below.
	var (
		replayMu sync.RWMutex
		current  *replay.Controller
	)

	cfg := p2p.CoordinatorConfig{
		Version:    defaultVersion,
		ListenAddr: p2pAddr,
	}
	coord := p2p.NewCoordinator(cfg, battle.SimEngine{}, func(round int, seed int64, out battle.Output) {
		ctrl := replay.NewController(out, func(winner battle.Side) {
			logrus.WithFields(logrus.Fields{
				"round":  round,
				"winner": winner,
			}).Info("battle playback complete")
		})
		replayMu.Lock()
		if current != nil {
			current.Stop()
		}
		current = ctrl
		replayMu.Unlock()
		ctrl.Play()

		if *recordDir != "" {
			rec := replay.NewRecord(round, seed, out)
			path := fmt.Sprintf("%s/battle-%s.json", *recordDir, rec.ID)
			if err := replay.SaveRecord(path, rec); err != nil {
				logrus.Errorf("failed to save battle record: %s", err)
			}
		}
	})

	apiServer := p2p.NewAPIServer(apiAddr, coord, func() *replay.Controller {
		replayMu.RLock()
		defer replayMu.RUnlock()
		return current
	})
	go apiServer.Run()

	if *connectTo != "" {
		logrus.Infof("Joining host: %s", *connectTo)
		if err := coord.Join(*connectTo); err != nil {
			logrus.Errorf("Failed to join %s: %s", *connectTo, err)
		}
	} else {
		coord.Host()
		logrus.Info("To join this session from another terminal, run:")
		logrus.Infof("   go run main.go -p2p-port=3001 -api-port=8081 -connect=%s", p2pAddr)
	}

	logrus.Info("===========================================")
	logrus.Info("  Peer Battler")
	logrus.Info("===========================================")
	logrus.Infof("Version:        %s", defaultVersion)
	logrus.Infof("P2P Address:    %s", p2pAddr)
	logrus.Infof("API Address:    http://%s", apiAddr)
	logrus.Info("===========================================")
	logrus.Info("")
	logrus.Info("API Endpoints:")
	logrus.Infof("  Health:       GET  http://%s/api/health", apiAddr)
	logrus.Infof("  Session:      GET  http://%s/api/session", apiAddr)
	logrus.Infof("  Start:        POST http://%s/api/start", apiAddr)
	logrus.Infof("  Ready:        POST http://%s/api/ready", apiAddr)
	logrus.Infof("  Replay:       GET  http://%s/api/replay", apiAddr)
	logrus.Info("===========================================")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logrus.Info("Shutdown signal received. Cleaning up...")
	coord.Stop()
	replayMu.Lock()
	if current != nil {
		current.Stop()
	}
	replayMu.Unlock()
	logrus.Info("Stopped")
}

// runSolo proves the replay layer is independent of the network: resolve two
// sample boards right here and drive the controller to completion.
func runSolo(seed int64) {
	self := battle.Board{
		{TemplateID: "bruiser"},
		{TemplateID: "enrage"},
		{TemplateID: "grunt", AttackDelta: 1},
	}
	opponent := battle.Board{
		{TemplateID: "spawner"},
		{TemplateID: "tank"},
		{TemplateID: "grunt"},
	}

	out, err := battle.SimEngine{}.Resolve(self, opponent, seed)
	if err != nil {
		logrus.Fatalf("sandbox resolution failed: %s", err)
	}
	logrus.WithFields(logrus.Fields{
		"seed":   seed,
		"events": len(out.Events),
		"winner": out.Winner,
	}).Info("sandbox battle resolved")

	done := make(chan battle.Side, 1)
	ctrl := replay.NewController(out, func(winner battle.Side) {
		done <- winner
	})
	if err := ctrl.SetSpeed(10); err != nil {
		logrus.Fatal(err)
	}
	ctrl.Play()
	winner := <-done

	player, enemy := ctrl.Boards()
	logrus.WithFields(logrus.Fields{
		"winner":        winner,
		"player-units":  len(player),
		"enemy-units":   len(enemy),
		"final-index":   ctrl.Index(),
		"playback-done": ctrl.State(),
	}).Info("sandbox playback finished")
}
