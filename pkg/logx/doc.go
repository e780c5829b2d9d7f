// Package logx configures kwbot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON lines
//   - An optional Telegram sink forwards WARN+ lines to a log chat, rate limited
//
// Loggers handed out by a Service follow Service.Apply, so a config reload
// changes level and sinks for every component without re-wiring.
package logx
