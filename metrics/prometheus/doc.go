// Package prometheus exports walfile metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, err := walprom.New(reg, walprom.WithConstLabels(prometheus.Labels{"file": "data.bin"}))
//	f, err := walfile.Open(path, walfile.ReadWrite, 0o600, 0, walfile.WithMetricsCollector(mc))
//
// Serve reg with promhttp.HandlerFor as usual.
package prometheus
