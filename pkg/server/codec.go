// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package server is the gRPC facade over the domain services. Messages
// are plain Go structs carried by a JSON codec, and each service is
// registered through a hand-maintained grpc.ServiceDesc; no business
// logic lives here.
package server

import (
	"encoding/json"
	"fmt"
)

// CodecName is the content-subtype the facade serves,
// "application/grpc+json" on the wire.
const CodecName = "json"

// jsonCodec marshals wire messages with encoding/json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not unmarshal %T: %w", v, err)
	}
	return nil
}
