// Package ptz implements the PTZ Controller (C3): recalling ONVIF presets
// on pan-tilt-zoom cameras. No ONVIF client library appears anywhere in the
// retrieval pack this module was built from, so the SOAP transport is
// built directly on net/http and encoding/xml, shaped like the teacher's
// own pooled-HTTP-client pattern (see DESIGN.md).
package ptz

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"
)

// Client issues ONVIF PTZ SOAP requests against one camera's device
// service. Production code talks to a real ONVIF endpoint; tests
// substitute a fake implementing the same interface used by Controller.
type Client interface {
	GotoPreset(ctx context.Context, addr, user, pass, token string) error
	// SetPreset captures the camera's current position as a new preset
	// named name, returning the ONVIF preset token the camera assigned.
	SetPreset(ctx context.Context, addr, user, pass, name string) (token string, err error)
	// AbsoluteMove drives the camera directly to the given pan/tilt/zoom
	// coordinates, each in the ONVIF-normalized [-1,1] range.
	AbsoluteMove(ctx context.Context, addr, user, pass string, pan, tilt, zoom float64) error
}

// gotoPresetTemplate is the minimal ONVIF SOAP 1.2 envelope needed for a
// GotoPreset PTZ request.
const gotoPresetTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
            xmlns:tptz="http://www.onvif.org/ver20/ptz/wsdl">
  <s:Body>
    <tptz:GotoPreset>
      <tptz:ProfileToken>Profile_1</tptz:ProfileToken>
      <tptz:PresetToken>%s</tptz:PresetToken>
    </tptz:GotoPreset>
  </s:Body>
</s:Envelope>`

// setPresetTemplate asks the camera to capture its current position under
// the given human-readable name; the camera assigns and returns the token.
const setPresetTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
            xmlns:tptz="http://www.onvif.org/ver20/ptz/wsdl">
  <s:Body>
    <tptz:SetPreset>
      <tptz:ProfileToken>Profile_1</tptz:ProfileToken>
      <tptz:PresetName>%s</tptz:PresetName>
    </tptz:SetPreset>
  </s:Body>
</s:Envelope>`

// absoluteMoveTemplate drives the camera directly to a pan/tilt/zoom
// coordinate rather than recalling a stored preset.
const absoluteMoveTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
            xmlns:tptz="http://www.onvif.org/ver20/ptz/wsdl">
  <s:Body>
    <tptz:AbsoluteMove>
      <tptz:ProfileToken>Profile_1</tptz:ProfileToken>
      <tptz:Position>
        <tptz:PanTilt x="%f" y="%f"/>
        <tptz:Zoom x="%f"/>
      </tptz:Position>
    </tptz:AbsoluteMove>
  </s:Body>
</s:Envelope>`

type soapFault struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault struct {
			Reason string `xml:"Reason>Text"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// setPresetResponse unwraps the ONVIF SetPreset response far enough to pull
// out the assigned preset token.
type setPresetResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		SetPresetResponse struct {
			PresetToken string `xml:"PresetToken"`
		} `xml:"SetPresetResponse"`
	} `xml:"Body"`
}

// HTTPClient implements Client over a pooled http.Client, mirroring the
// teacher's client.go connection-pooling setup.
type HTTPClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPClient returns an HTTPClient with the given per-request timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		timeout: timeout,
	}
}

// GotoPreset sends a GotoPreset SOAP request to addr's ONVIF PTZ service.
func (c *HTTPClient) GotoPreset(ctx context.Context, addr, user, pass, token string) error {
	body := fmt.Sprintf(gotoPresetTemplate, token)
	resp, err := c.soapPost(ctx, addr, user, pass, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return faultError("GotoPreset", resp)
	}
	return nil
}

// SetPreset sends a SetPreset SOAP request, capturing the camera's current
// position under name and returning the token the camera assigns it.
func (c *HTTPClient) SetPreset(ctx context.Context, addr, user, pass, name string) (string, error) {
	body := fmt.Sprintf(setPresetTemplate, name)
	resp, err := c.soapPost(ctx, addr, user, pass, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", faultError("SetPreset", resp)
	}

	var parsed setPresetResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ONVIF SetPreset: decoding response: %w", err)
	}
	if parsed.Body.SetPresetResponse.PresetToken == "" {
		return "", fmt.Errorf("ONVIF SetPreset: camera returned no preset token")
	}
	return parsed.Body.SetPresetResponse.PresetToken, nil
}

// AbsoluteMove sends an AbsoluteMove SOAP request to drive the camera
// directly to pan/tilt/zoom.
func (c *HTTPClient) AbsoluteMove(ctx context.Context, addr, user, pass string, pan, tilt, zoom float64) error {
	body := fmt.Sprintf(absoluteMoveTemplate, pan, tilt, zoom)
	resp, err := c.soapPost(ctx, addr, user, pass, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return faultError("AbsoluteMove", resp)
	}
	return nil
}

// soapPost issues one SOAP request against addr's ONVIF PTZ service,
// shared by every operation in this file since they differ only in body and
// error context.
func (c *HTTPClient) soapPost(ctx context.Context, addr, user, pass, body string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/onvif/ptz_service", addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return nil, fmt.Errorf("building ONVIF request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ONVIF request canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ONVIF request failed: %w", err)
	}
	return resp, nil
}

func faultError(op string, resp *http.Response) error {
	var fault soapFault
	_ = xml.NewDecoder(resp.Body).Decode(&fault)
	return fmt.Errorf("ONVIF %s failed: status=%d reason=%q", op, resp.StatusCode, fault.Body.Fault.Reason)
}
