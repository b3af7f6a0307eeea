// Package influxdb provides time-series telemetry for manipd.
//
// Position samples and move outcomes are written to InfluxDB v2 using the
// non-blocking batched write API, so telemetry never stalls the serial link
// or the position monitor.
//
// The sink is optional: when disabled in configuration the daemon runs
// without telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Warn("telemetry disabled", "error", err)
//	} else {
//	    defer client.Close()
//	    client.WritePosition("patchstar-01", x, y, z)
//	}
package influxdb
