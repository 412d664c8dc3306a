package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/hostara/hostara/api/internal/models"
	"github.com/redis/go-redis/v9"
)

// ClientRegistry hands out admin clients for the shared cache servers,
// keyed by address. It is owned by the service lifecycle: constructed at
// startup, Close()d at shutdown. Provisioners borrow clients and never
// close them.
type ClientRegistry struct {
	mu      sync.Mutex
	clients map[string]*redis.Client
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*redis.Client)}
}

// Get returns the admin client for a cache server, creating it on first use
func (r *ClientRegistry) Get(server *models.CacheServer) *redis.Client {
	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[addr]; ok {
		return client
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: server.Username,
		Password: server.Password,
		DB:       0,
	})
	r.clients[addr] = client
	return client
}

// Ping verifies connectivity to a cache server
func (r *ClientRegistry) Ping(ctx context.Context, server *models.CacheServer) error {
	if err := r.Get(server).Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach cache server %s: %w", server.Host, err)
	}
	return nil
}

// Close releases every client. Called once at shutdown.
func (r *ClientRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for addr, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close cache client %s: %w", addr, err)
		}
		delete(r.clients, addr)
	}
	return firstErr
}
