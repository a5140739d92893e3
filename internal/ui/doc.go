// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the Bubble Tea front end: an analysis brief pane above a
// chat transcript, with a single-line input. The model holds no domain
// state of its own; it renders Snapshot values from the session and
// generation controllers and pokes them on key presses. Controllers push
// a RefreshMsg through the program whenever their state changes.
package ui
