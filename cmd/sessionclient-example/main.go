package main

import (
	"encoding/binary"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vsrkv/vsrkv/internal/bus"
	"github.com/vsrkv/vsrkv/pkg/config"
	"github.com/vsrkv/vsrkv/pkg/metrics"
	"github.com/vsrkv/vsrkv/pkg/msgpool"
	"github.com/vsrkv/vsrkv/pkg/session"
	"github.com/vsrkv/vsrkv/pkg/wire"
)

const tickPeriod = 10 * time.Millisecond

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.LoadSessionConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid session config: %v", err)
	}

	logger.Info("connecting to replicas", "replicas", cfg.Replicas, "cluster_id", cfg.ClusterID)

	b, err := bus.DialTCPBus(cfg.Replicas, wire.HeaderSize+4096, cfg.RequestQueueMax*2, logger)
	if err != nil {
		log.Fatalf("dial replicas: %v", err)
	}
	defer b.Close()

	clientID := randomClientID()
	sc, err := session.New(session.Config{
		ClientID:        clientID,
		ClusterID:       cfg.ClusterID,
		ReplicaCount:    uint8(cfg.ReplicaCount),
		RequestQueueMax: cfg.RequestQueueMax,
		PingTicks:       cfg.PingTicks,
		RTTTicks:        cfg.RTTTicks,
		RTTMultiple:     cfg.RTTMultiple,
		MaxBackoffLog:   cfg.MaxBackoffLog,
		Logger:          logger,
		Metrics:         metrics.New(nil),
	}, b)
	if err != nil {
		log.Fatalf("construct session client: %v", err)
	}

	const opPut wire.Operation = 16
	msg, err := sc.AcquireMessage()
	if err != nil {
		log.Fatalf("acquire message: %v", err)
	}
	payload := []byte("hello, vsrkv")
	copy(msg.Buffer()[wire.HeaderSize:], payload)

	var userData [16]byte
	copy(userData[:], "example-put")

	done := make(chan struct{})
	err = sc.Submit(userData, func(ud [16]byte, reply *msgpool.Message) {
		logger.Info("received reply", "user_data", string(userData[:]))
		close(done)
	}, opPut, msg, len(payload))
	if err != nil {
		log.Fatalf("submit: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sc.Tick(); err != nil {
				logger.Error("session client fatal", "error", err)
				return
			}
		case <-done:
			logger.Info("example request completed, exiting")
			return
		case <-sigChan:
			logger.Info("shutting down")
			return
		}
	}
}

func randomClientID() wire.Digest {
	id := uuid.New()
	var d wire.Digest
	copy(d[:], id[:])
	// Ensure the low 8 bytes (used as the PRNG seed in pkg/session) are
	// never all-zero, which would otherwise produce a deterministic seed
	// across every freshly generated client.
	if binary.LittleEndian.Uint64(d[:8]) == 0 {
		d[0] = 1
	}
	return d
}
