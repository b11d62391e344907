package gc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/orizon-lang/rcimmix/internal/runtime/netstack"
)

// MetricsSnapshot flattens RuntimeStats into the name -> value form the text
// exposition format below expects, using "gc_" prefixed tokens so a host
// scraping several subsystems on one mux can tell these apart.
func (r *Runtime) MetricsSnapshot() map[string]float64 {
	s := r.Stats()

	return map[string]float64{
		"gc_total_blocks":     float64(s.TotalBlocks),
		"gc_available_blocks": float64(s.AvailableBlocks),
		"gc_evac_headroom":    float64(s.EvacHeadroom),
		"gc_large_objects":    float64(s.LargeObjects),
	}
}

// StartMetricsServer serves r's metrics snapshot as a minimal text
// exposition endpoint under "/gc/metrics", refreshed on every request. If
// tlsCfg is non-nil the listener is wrapped with netstack's hardened TLS
// defaults instead of serving plaintext.
func StartMetricsServer(addr string, r *Runtime, tlsCfg *tls.Config) (string, func(ctx context.Context) error, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gc/metrics", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		snapshot := r.MetricsSnapshot()
		for _, name := range []string{"gc_total_blocks", "gc_available_blocks", "gc_evac_headroom", "gc_large_objects"} {
			fmt.Fprintf(w, "%s %g\n", name, snapshot[name])
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	if tlsCfg != nil {
		tlsLn := netstack.TLSServer(ln, tlsCfg)
		bound := tlsLn.Addr().String()

		go func() { _ = srv.Serve(tlsLn) }()

		return bound, srv.Shutdown, nil
	}

	bound := ln.Addr().String()

	go func() { _ = srv.Serve(ln) }()

	return bound, srv.Shutdown, nil
}
