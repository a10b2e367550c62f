// Package logx is the structured logger used across postbot.
//
// Logger is a small value type over zerolog:
//   - console output is human readable (short timestamp, file:line caller)
//   - file output stays JSON
//   - an optional Telegram sink forwards WARN+ lines to a log chat, rate limited
//
// A Logger obtained from Service follows Service.Apply, so components keep
// their logger across config reloads.
package logx
