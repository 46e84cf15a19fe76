// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// rpcClient issues topic-routed RPCs against a flux-job-ingest broker's
// "/rpc/<topic>" routes (internal/transport/broker.go), satisfying
// internal/attach's StdinSender, Canceler, and QueueStatus collaborators.
type rpcClient struct {
	baseURL string
	client  *http.Client
}

func newRPCClient(baseURL string) *rpcClient {
	return &rpcClient{baseURL: baseURL, client: http.DefaultClient}
}

type rpcEnvelope struct {
	Payload json.RawMessage `json:"payload"`
}

func (c *rpcClient) call(ctx context.Context, topic string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(map[string]json.RawMessage{"payload": body})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+topic, bytes.NewReader(msg))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ferrors.Newf(ferrors.CodeConnectionReset, "%s: %v", topic, err)
	}
	defer resp.Body.Close()

	var env rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, ferrors.Newf(ferrors.CodeProtocolError, "%s: decode response: %v", topic, err)
	}
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(env.Payload, &errBody)
		if errBody.Error == "" {
			errBody.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusNotImplemented {
			return nil, ferrors.New(ferrors.CodeUnsupported, errBody.Error)
		}
		return nil, ferrors.New(ferrors.CodeIOError, errBody.Error)
	}
	return env.Payload, nil
}

// SendStdin implements internal/attach.StdinSender, spec.md §4.9's
// "<service>.stdin" RPC.
func (c *rpcClient) SendStdin(ctx context.Context, service, ranks string, data []byte, eof bool) error {
	payload := map[string]any{
		"stream": "stdin",
		"ranks":  ranks,
		"data":   base64.StdEncoding.EncodeToString(data),
		"eof":    eof,
	}
	_, err := c.call(ctx, service+".stdin", payload)
	return err
}

// Cancel implements internal/attach.Canceler, spec.md §4.9's
// flux_job_cancel(id, note).
func (c *rpcClient) Cancel(ctx context.Context, jobID uint64, note string) error {
	payload := map[string]any{"id": jobID, "note": note}
	_, err := c.call(ctx, "job-manager.cancel", payload)
	return err
}

// Stopped implements internal/attach.QueueStatus.
func (c *rpcClient) Stopped(ctx context.Context, queue string) (bool, error) {
	raw, err := c.call(ctx, "job-info.queue-status", map[string]any{"queue": queue})
	if err != nil {
		return false, err
	}
	var out struct {
		Stopped bool `json:"stopped"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, err
	}
	return out.Stopped, nil
}
