package client

import (
	"context"

	"github.com/menta2k/exists-in-image/pkg/types"
)

// VisionClient sends a prompt with an image and returns the model's reply text
type VisionClient interface {
	Complete(ctx context.Context, req types.VisionRequest) (string, error)
}
