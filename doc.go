// Package petsync keeps chat and notification state consistent across a
// realtime push channel, a polling fallback, and optimistic local
// mutations.
//
// A Client is constructed once per process; each logical stream (one
// support-chat session, or one user's notification feed) is opened as a
// Stream. The Stream owns a reconciler that serializes arrivals from
// every source through a single consumer goroutine and exposes one
// ordered, deduplicated view list:
//
//	client, err := petsync.New(petsync.Config{
//		BaseURL:     "https://api.pawbase.example",
//		RealtimeURL: "wss://realtime.pawbase.example/feed",
//		LocalUserID: "u-123",
//	})
//	if err != nil { ... }
//	if err := client.Connect(ctx); err != nil { ... }
//
//	stream, err := client.Open(ctx, models.Scope{
//		Kind: models.ScopeChatSession,
//		ID:   "s-42",
//	})
//	if err != nil { ... }
//	defer stream.Close()
//
//	for view := range stream.Updates() {
//		render(view.Items, view.Unread)
//	}
//
// Delivery never silently stops: whenever the push channel is anything
// other than confirmed live, the poll fallback keeps fetching the full
// list on its interval, and the reconciler's idempotency makes the
// overlap safe.
package petsync
