// Package tgui provides small chat UI helpers:
//   - Inline keyboard builders over transport.Button, converted to telebot
//     markup at the edge
//   - Callback data helpers (scope:action:payload)
//   - A message builder with HTML escaping and newline-aware splitting
//
// Text produced here is safe for Telegram ParseMode="HTML" when the builder
// is left at its default parse mode.
package tgui
