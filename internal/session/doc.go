// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns one symbol's analysis conversation.
//
// The Controller is a small state machine:
//
//	Idle -> AwaitingFirstByte -> Streaming -> Finalized -> Idle
//
// It guards submissions (never two streams at once), feeds decoded chat
// events into the stream.Assembler, appends exactly one message per turn,
// mirrors finalized turns to the remote conversation store in agent mode,
// and tears everything down on cancellation without leaving a partial
// message behind.
//
// Each symbol gets its own Controller; switching symbols discards the old
// one rather than sharing state.
package session
