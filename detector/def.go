package detector

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	iface "PartInspect/interface"

	"github.com/go-resty/resty/v2"
)

// Client talks to the external detector service. The neural network
// runtime lives entirely on the other side of this boundary; the
// client ships a letterboxed image and gets the raw score/box tensor
// back.
type Client struct {
	http     *resty.Client
	endpoint string
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		http:     resty.New().SetTimeout(timeout),
		endpoint: endpoint,
	}
}

type detectRequest struct {
	Image     string                `json:"image"`
	Letterbox iface.LetterboxParams `json:"letterbox"`
}

type detectResponse struct {
	Success bool            `json:"success"`
	Output  iface.RawOutput `json:"output"`
	Message string          `json:"message,omitempty"`
}

// Detect sends the already-letterboxed image and returns the raw
// detector output with the letterbox parameters attached, so the
// decoder can map boxes back to original-image pixels.
func (c *Client) Detect(ctx context.Context, imgJPEG []byte, lb iface.LetterboxParams) (iface.RawOutput, error) {
	var respBody detectResponse
	url := fmt.Sprintf("%s/api/detect", c.endpoint)
	reqBody := detectRequest{
		Image:     base64.StdEncoding.EncodeToString(imgJPEG),
		Letterbox: lb,
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&respBody).
		Post(url)
	if err != nil {
		return iface.RawOutput{}, fmt.Errorf("detector: request: %w", err)
	}
	if resp.IsError() {
		return iface.RawOutput{}, fmt.Errorf("detector: server returned %s: %s", resp.Status(), resp.String())
	}
	if !respBody.Success {
		return iface.RawOutput{}, fmt.Errorf("detector: inference failed: %s", respBody.Message)
	}
	out := respBody.Output
	if out.Letterbox == (iface.LetterboxParams{}) {
		out.Letterbox = lb
	}
	return out, nil
}
