// Package cloudapi implements the vendor cloud lister outbound
// collaborator of §6: given an OAuth access token and a panel id, it
// returns the panel's MAC, transport capabilities, and partition list.
// Grounded on the teacher's manual http.Client/http.NewRequest
// construction (main.go's clearBMCSessions helper).
package cloudapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

// Lister is the facade-facing contract; internal/facade depends on this
// interface, not on Client, so tests can substitute a fake.
type Lister interface {
	ListPanel(ctx context.Context, accessToken, panelID string) (*model.VendorPanelInfo, error)
}

// Client is the real HTTP-backed Lister.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client against baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type panelResponse struct {
	MAC         string `json:"mac"`
	Connections struct {
		IsCloudEnabled            bool   `json:"is_cloud_enabled"`
		IsIPReceiverServerEnabled bool   `json:"is_ip_receiver_server_enabled"`
		ReceiverHost              string `json:"receiver_host"`
		ReceiverPort              int    `json:"receiver_port"`
		ReceiverAccount           string `json:"receiver_account"`
	} `json:"connections"`
	Partitions []struct {
		ID string `json:"id"`
	} `json:"partitions"`
}

// ListPanel calls GET {baseURL}/clientes/dispositivos/{panelID}.
func (c *Client) ListPanel(ctx context.Context, accessToken, panelID string) (*model.VendorPanelInfo, error) {
	url := fmt.Sprintf("%s/clientes/dispositivos/%s", c.baseURL, panelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.Internal, "build vendor cloud request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.ConnectionUnavailable, "vendor cloud request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, gwerr.New(gwerr.PanelNotFound, "panel not found in vendor cloud")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, gwerr.New(gwerr.ConnectionUnavailable, fmt.Sprintf("vendor cloud returned status %d", resp.StatusCode))
	}

	var pr panelResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, gwerr.Wrap(gwerr.ProtocolError, "decode vendor cloud response", err)
	}

	ids := make([]string, 0, len(pr.Partitions))
	for _, p := range pr.Partitions {
		ids = append(ids, p.ID)
	}

	return &model.VendorPanelInfo{
		MAC:                       pr.MAC,
		IsCloudEnabled:            pr.Connections.IsCloudEnabled,
		IsIPReceiverServerEnabled: pr.Connections.IsIPReceiverServerEnabled,
		ReceiverHost:              pr.Connections.ReceiverHost,
		ReceiverPort:              pr.Connections.ReceiverPort,
		ReceiverAccount:           pr.Connections.ReceiverAccount,
		PartitionIDs:              ids,
	}, nil
}
