// Command godiode-send is a thin wrapper around package send: it accepts
// cleartext TCP connections and feeds each one into the encode-and-transmit
// pipeline as a client transfer. Process wiring (flags, logging, metrics
// endpoint) lives here so the send package itself stays transport-agnostic.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/r3dlight/godiode/diodecfg"
	"github.com/r3dlight/godiode/middleware"
	"github.com/r3dlight/godiode/registry"
	"github.com/r3dlight/godiode/send"
)

func main() {
	var (
		listenAddr   = flag.String("listen", ":9000", "TCP address clients connect to")
		toAddr       = flag.String("to", "", "receiver UDP address (host:port)")
		mtu          = flag.Uint("mtu", 1500, "link MTU in bytes")
		blockSize    = flag.Uint("block-size", 1 << 16, "FEC block size in bytes")
		repairPct    = flag.Uint("repair-percent", 20, "FEC repair symbols as a percentage of data symbols")
		maxClients   = flag.Uint("max-clients", 16, "maximum concurrent client transfers")
		encodeThreads = flag.Uint("encode-threads", 4, "number of parallel FEC encoder goroutines")
		heartbeat    = flag.Duration("heartbeat", 0, "heartbeat interval, 0 disables")
		metricsAddr  = flag.String("metrics-listen", "", "Prometheus /metrics address, empty disables")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	to, err := net.ResolveUDPAddr("udp", *toAddr)
	if err != nil {
		log.Fatal("invalid -to address", zap.Error(err))
	}

	cfg := &diodecfg.Sender{
		Shared: diodecfg.Shared{
			MTU:           uint16(*mtu),
			BlockSize:     uint32(*blockSize),
			RepairPercent: uint32(*repairPct),
		},
		ListenAddr:        *listenAddr,
		To:                to,
		MaxClients:        uint32(*maxClients),
		NbEncodeThreads:   uint8(*encodeThreads),
		HeartbeatInterval: *heartbeat,
		UDPBatchSize:      16,
	}

	opts := []send.Option{send.WithLogger(log)}

	if *metricsAddr != "" {
		processed := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "godiode_send_blocks_processed_total",
			Help: "Blocks accepted by the sender, by kind.",
		}, []string{"kind"})
		failed := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "godiode_send_blocks_failed_total",
			Help: "Blocks rejected by the sender, by kind.",
		}, []string{"kind"})
		reg := prometheus.NewRegistry()
		reg.MustRegister(processed, failed)
		opts = append(opts,
			send.WithMiddleware(middleware.Chain(
				middleware.LoggingMiddleware(log),
				middleware.MetricsMiddleware(processed, failed),
			)),
			send.WithRegistry(registry.NewPrometheusRegistry(reg, "godiode_send")),
		)

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Error("metrics server stopped", zap.Error(http.ListenAndServe(*metricsAddr, mux)))
		}()
	}

	sender, err := send.New(cfg, opts...)
	if err != nil {
		log.Fatal("failed to start sender", zap.Error(err))
	}
	defer sender.Close()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.Error(err))
	}
	defer ln.Close()

	log.Info("accepting clients", zap.String("listen", cfg.ListenAddr), zap.String("to", to.String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error("accept failed", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go func() {
			defer conn.Close()
			if err := sender.HandleClient(conn); err != nil {
				log.Warn("client transfer failed", zap.Error(err))
			}
		}()
	}
}
