// Package commands implements the chat command surface of kwbot: /kw with
// its subcommands, /start and /help.
//
// Replies go to the caller's private chat and fall back to the chat the
// command was sent in when the bot cannot start a private conversation.
package commands
