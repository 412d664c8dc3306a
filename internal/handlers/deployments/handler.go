package deployments

import (
	"github.com/hostara/hostara/api/internal/deploy"
)

// Handler serves the deployment read/cancel surface
type Handler struct {
	Gateway deploy.Gateway
}

func NewHandler(gateway deploy.Gateway) *Handler {
	return &Handler{Gateway: gateway}
}
