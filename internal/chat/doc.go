// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat owns conversation state for the lexos-tui client: the
conversation list, the active selection, and the optimistic-update protocol
for in-flight chat exchanges.

# State Model

All conversation state lives in a single persisted store (snapshot name
"conversations"). The list is ordered most-recent-first by creation; the
active identifier selects which conversation user intents apply to, and is
deliberately not validated, so a stale selection degrades to "no active
conversation" semantics rather than an error.

# Send-Turn Protocol

Send is the concurrency-sensitive path. On submission it synchronously
appends the user message and a placeholder assistant message (sentinel
content "…"), then issues the chat request carrying the current sampling
preferences and reconciles the placeholder with the result:

  - success replaces the placeholder content with the response text and
    attaches provenance (model, provider, tokens, cost, latency)
  - failure replaces it with a fixed human-readable notice and records the
    error on the store

The reconciliation closes over the placeholder's identifier, never a
pointer, and re-resolves both the conversation and the message through the
store at mutation time. That keeps it correct when the user keeps typing,
switches conversations, or deletes the target while the request is in
flight, and it allows any number of turns to be outstanding at once.

# History Loading

LoadHistory replaces a conversation's message sequence wholesale from the
backend's stored turns, reconstructing alternating user/assistant pairs.
Each assistant timestamp sits one millisecond after its paired user
timestamp so ordering stays stable when stored timestamps tie. A failed
load leaves the previous messages intact and only sets the error flag.

# Usage

	prefStore := prefs.Open(stateDir)
	store := chat.Open(stateDir, apiClient, prefStore)

	store.CreateConversation("", "be terse")
	go store.Send(ctx, "hello")
*/
package chat
