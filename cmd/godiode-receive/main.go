// Command godiode-receive is a thin wrapper around package receive: it
// reconstructs client transfers off the diode link and relays each one's
// decoded payload to a TCP connection dialed per client.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/r3dlight/godiode/diodecfg"
	"github.com/r3dlight/godiode/middleware"
	"github.com/r3dlight/godiode/protocol"
	"github.com/r3dlight/godiode/receive"
	"github.com/r3dlight/godiode/registry"
)

// tcpSink relays a client's decoded payload to a dialed TCP connection.
// Flush is a no-op: writes go straight to the socket.
type tcpSink struct {
	conn net.Conn
}

func (s *tcpSink) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *tcpSink) Flush() error                { return nil }

func main() {
	var (
		fromAddr    = flag.String("from", ":9001", "UDP address to receive the diode link on")
		toAddr      = flag.String("to", "", "TCP address to relay decoded client payloads to")
		mtu         = flag.Uint("mtu", 1500, "link MTU in bytes, must match the sender")
		blockSize   = flag.Uint("block-size", 1<<16, "FEC block size in bytes, must match the sender")
		repairPct   = flag.Uint("repair-percent", 20, "FEC repair percentage, must match the sender")
		maxClients  = flag.Uint("max-clients", 16, "maximum concurrent client transfers")
		decodeThreads = flag.Uint("decode-threads", 4, "number of parallel FEC decoder goroutines")
		metricsAddr = flag.String("metrics-listen", "", "Prometheus /metrics address, empty disables")
		acceptRate  = flag.Float64("client-accept-rate", 0, "maximum new client transfers admitted per second, 0 disables")
		acceptBurst = flag.Int("client-accept-burst", 1, "burst size for -client-accept-rate")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	from, err := net.ResolveUDPAddr("udp", *fromAddr)
	if err != nil {
		log.Fatal("invalid -from address", zap.Error(err))
	}
	if *toAddr == "" {
		log.Fatal("-to is required")
	}

	cfg := &diodecfg.Receiver{
		Shared: diodecfg.Shared{
			MTU:           uint16(*mtu),
			BlockSize:     uint32(*blockSize),
			RepairPercent: uint32(*repairPct),
		},
		FromListen:      from,
		ToBind:          *toAddr,
		MaxClients:      uint32(*maxClients),
		NbDecodeThreads: uint8(*decodeThreads),
		UDPBatchSize:    16,
	}

	sinkFactory := func(id protocol.ClientId) (receive.Sink, error) {
		conn, err := net.Dial("tcp", cfg.ToBind)
		if err != nil {
			return nil, fmt.Errorf("dial relay for client %d: %w", id, err)
		}
		return &tcpSink{conn: conn}, nil
	}

	opts := []receive.Option{receive.WithLogger(log)}
	if *acceptRate > 0 {
		opts = append(opts, receive.WithMiddleware(middleware.RateLimitMiddleware(*acceptRate, *acceptBurst)))
	}
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, receive.WithRegistry(registry.NewPrometheusRegistry(reg, "godiode_receive")))

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Error("metrics server stopped", zap.Error(http.ListenAndServe(*metricsAddr, mux)))
		}()
	}

	recv, err := receive.New(cfg, sinkFactory, opts...)
	if err != nil {
		log.Fatal("failed to start receiver", zap.Error(err))
	}
	defer recv.Close()

	log.Info("receiving", zap.String("from", from.String()), zap.String("relay_to", cfg.ToBind))
	select {}
}
