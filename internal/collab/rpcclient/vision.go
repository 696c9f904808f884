package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/normanking/aura-orchestrator/internal/collab"
	"github.com/normanking/aura-orchestrator/internal/types"
)

// VisionConfig configures a WebSocket-backed VisionClient.
type VisionConfig struct {
	BaseURL string
	Path    string
}

type visionRequest struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

type visionReply struct {
	IsAction    bool    `json:"is_action"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	Description string  `json:"description"`
}

// NewVisionClient builds a collab.VisionClient that dials cfg, sends the
// prompt, and parses the reply into a collab.VisionResult.
func NewVisionClient(cfg VisionConfig) collab.VisionClient {
	return &wsVisionClient{cfg: cfg}
}

type wsVisionClient struct {
	cfg VisionConfig
}

func (c *wsVisionClient) CaptureAndAnalyze(ctx context.Context, prompt string) (collab.VisionResult, error) {
	rc := ReasoningConfig{BaseURL: c.cfg.BaseURL, Path: c.cfg.Path}
	raw, err := roundTrip(ctx, rc, visionRequest{Type: "analyze", Prompt: prompt})
	if err != nil {
		return collab.VisionResult{}, err
	}
	var vr visionReply
	if err := json.Unmarshal(raw, &vr); err != nil {
		return collab.VisionResult{}, fmt.Errorf("rpcclient: decoding vision reply: %w", err)
	}
	return collab.VisionResult{
		IsAction:    vr.IsAction,
		Point:       types.Rect{X: vr.X, Y: vr.Y, W: vr.W, H: vr.H},
		Description: vr.Description,
	}, nil
}
