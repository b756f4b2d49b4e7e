package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

var ErrRouterStopped = errors.New("router stopped")

// Registrar adds a component's handlers to a router.
type Registrar func(r *message.Router) error

// NewRouter creates a router with panic recovery. Handlers decide on their own
// retry and poison behaviour.
func NewRouter(logger watermill.LoggerAdapter, registrars ...Registrar) (*message.Router, error) {
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	r.AddMiddleware(middleware.Recoverer)

	for _, reg := range registrars {
		if err := reg(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RouterService runs a freshly built router on every Serve so the supervisor
// can restart it after a failure.
type RouterService struct {
	name  string
	build func() (*message.Router, error)
}

func NewRouterService(name string, build func() (*message.Router, error)) *RouterService {
	return &RouterService{name: name, build: build}
}

func (s *RouterService) Serve(ctx context.Context) error {
	r, err := s.build()
	if err != nil {
		return err
	}
	if err := r.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrRouterStopped
}

func (s *RouterService) String() string {
	return s.name
}
