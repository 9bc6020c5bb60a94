// Package venus is the device gateway for Marstek Venus batteries.
//
// The Venus exposes a local JSON-RPC API over UDP (default port 30000).
// Each request is a single datagram:
//
//	{"id":7,"method":"Bat.GetStatus","params":{"id":0}}
//
// and the device answers with a datagram carrying the same id and either a
// "result" object or an "error" object. Datagrams can be lost, so a request
// that sees no matching reply before its deadline fails with ErrNoResponse.
// The gateway itself never retries; callers decide (see package retry).
//
// # Operations
//
//   - GetBatteryStatus: Bat.GetStatus (soc, bat_temp, bat_capacity, ...)
//   - GetMode:          ES.GetMode (mode, ongrid_power, bat_soc, ...)
//   - GetEnergyStatus:  ES.GetStatus (pv_power, ongrid_power, ...)
//   - GetData:          the merged telemetry snapshot published by the poller
//   - SetMode:          ES.SetMode with an AutoCommand or ManualCommand
//
// A reply whose result object is empty fails with ErrEmptyResult; one that
// is missing a required field fails with ErrMalformedResponse. Neither is
// ever returned as a partial success.
package venus
