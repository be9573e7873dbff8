// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/hashicorp/go-hclog"
)

// smsNotifier posts outbound messages to an external SMS gateway. The core
// treats delivery as best-effort, so failures surface only as errors for it
// to log.
type smsNotifier struct {
	url    string
	token  string
	client *http.Client
	logger log.Logger
}

func newSMSNotifier(logger log.Logger, url, token string) *smsNotifier {
	return &smsNotifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.Named("sms"),
	}
}

type smsPayload struct {
	To   string `json:"to"`
	Kind string `json:"kind"`
	Body string `json:"body"`
}

func (n *smsNotifier) Send(ctx context.Context, phone, kind, body string) error {
	buf, err := json.Marshal(&smsPayload{To: phone, Kind: kind, Body: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	n.logger.Debug("message delivered", "kind", kind)
	return nil
}
