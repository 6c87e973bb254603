// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"fmt"
	"net"

	"github.com/seed-foundation/seed/lib/codec"
)

// Call performs one request-response cycle against the ops socket:
// dial, send request, decode the response envelope. When result is
// non-nil the reply's data field is unmarshaled into it. A failure
// response comes back as an error.
func Call(ctx context.Context, socketPath string, request any, result any) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("dialing ops socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("sending ops request: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("reading ops response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("ops request failed: %s", response.Error)
	}
	if result != nil {
		if response.Data == nil {
			return fmt.Errorf("ops response has no data")
		}
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding ops response data: %w", err)
		}
	}
	return nil
}

// Status fetches the server status.
func Status(ctx context.Context, socketPath string) (StatusReply, error) {
	var reply StatusReply
	err := Call(ctx, socketPath, map[string]string{"action": "status"}, &reply)
	return reply, err
}

// Sessions fetches the live session snapshot.
func Sessions(ctx context.Context, socketPath string) ([]SessionReply, error) {
	var replies []SessionReply
	err := Call(ctx, socketPath, map[string]string{"action": "sessions"}, &replies)
	return replies, err
}

// CloseSession force-closes one session and reports whether it was
// live.
func CloseSession(ctx context.Context, socketPath string, id string, reason string) (bool, error) {
	var reply CloseSessionReply
	err := Call(ctx, socketPath, CloseSessionRequest{
		Action:  "close-session",
		Session: id,
		Reason:  reason,
	}, &reply)
	return reply.Closed, err
}
