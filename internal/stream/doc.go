// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the analysis backend's streaming wire format.
//
// The backend answers streaming requests with UTF-8 text where each record
// is one line of the form:
//
//	data: {"type":"token","data":"P/E "}
//
// separated by '\n'. This package turns that byte stream into typed events
// and reassembles them into complete messages:
//
//   - Decoder: splits arbitrarily-chunked bytes into complete frames,
//     carrying the trailing partial line between reads
//   - Frame: one decoded record (type tag + raw JSON)
//   - ChatEvent / GenerationEvent: closed sum types, one per vocabulary
//   - DispatchChat / DispatchGeneration: exhaustive routing to a handler
//   - Assembler: accumulates token text, sources and tool calls for the
//     in-flight turn and finalizes them into exactly one Message
//
// The decoder is tied to a single HTTP body and is not restartable.
package stream
