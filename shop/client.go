// Package shop is the session and data-access layer of the Lookbook mobile
// client. It owns the session state machine, the request dispatcher, all
// caches and the pending-request table; UI code calls the resource
// accessors and mutation methods and reacts to the events the bus emits.
package shop

import (
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/lookbook-shop/client-go/api"
	"github.com/lookbook-shop/client-go/auth"
	"github.com/lookbook-shop/client-go/cache"
	"github.com/lookbook-shop/client-go/events"
	"github.com/lookbook-shop/client-go/store"
)

type Option func(*Client)

// WithPartitions substitutes the storage partitions, bypassing the on-disk
// default. Tests use in-memory partitions.
func WithPartitions(parts store.Partitions) Option {
	return func(c *Client) {
		c.parts = parts
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client is the one explicit context object holding everything the layer
// shares: session, caches, pending-request table. Construct it once at
// startup and hand it to the UI.
type Client struct {
	cfg        Config
	parts      store.Partitions
	bus        *events.Bus
	auth       *auth.Manager
	dispatch   *api.Dispatcher
	httpClient *http.Client

	// flights collapses concurrent fetches for the same logical resource
	// into one network call.
	flights singleflight.Group

	brands     *cache.TTL[[]Brand]
	styles     *cache.TTL[[]Style]
	categories *cache.TTL[[]Category]
	popular    *cache.TTL[[]Product]
	favorites  *cache.TTL[[]Product]
	profile    *cache.TTL[UserProfile]
	products   *cache.LRU[Product]
}

func New(cfg Config, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		bus:        events.NewBus(),
		httpClient: &http.Client{},
	}
	for _, option := range options {
		option(c)
	}

	if c.parts == (store.Partitions{}) {
		dir := cfg.DataDir
		if dir == "" {
			dir = ".lookbook"
		}
		parts, err := store.OpenFilePartitions(dir)
		if err != nil {
			return nil, err
		}
		c.parts = parts
	}

	manager, err := auth.NewManager(
		c.parts, c.bus,
		cfg.BaseURL+"/api/v1/auth/refresh",
		auth.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return nil, err
	}
	c.auth = manager

	c.dispatch = api.NewDispatcher(
		cfg.BaseURL, c.auth,
		api.WithHTTPClient(c.httpClient),
		api.WithDefaults(api.Options{
			Timeout:    cfg.Timeout.or(0),
			Retries:    cfg.Retries,
			RetryDelay: cfg.RetryDelay.or(0),
		}),
	)

	catalogTTL := cfg.CatalogTTL.or(defaultCatalogTTL)
	mirrorTTL := cfg.CatalogMirrorTTL.or(defaultCatalogMirrorTTL)

	c.brands = cache.NewTTL(catalogTTL, cache.WithMirror[[]Brand](c.parts.General, "cache:brands", mirrorTTL))
	c.styles = cache.NewTTL(catalogTTL, cache.WithMirror[[]Style](c.parts.General, "cache:styles", mirrorTTL))
	c.categories = cache.NewTTL(catalogTTL, cache.WithMirror[[]Category](c.parts.General, "cache:categories", mirrorTTL))
	c.popular = cache.NewTTL[[]Product](catalogTTL)
	c.favorites = cache.NewTTL[[]Product](cfg.ProfileTTL.or(defaultProfileTTL))
	c.profile = cache.NewTTL[UserProfile](cfg.ProfileTTL.or(defaultProfileTTL))

	products, err := cache.NewLRU[Product](cfg.productCacheSize(), cfg.ProductTTL.or(defaultProductTTL))
	if err != nil {
		return nil, fmt.Errorf("create product cache: %w", err)
	}
	c.products = products

	// A fresh process can serve slightly stale catalog data immediately.
	c.hydrate()

	// Any path that clears the session also wipes the caches; no cached
	// resource outlives the session that populated it.
	c.auth.OnReset(c.clearCaches)

	return c, nil
}

func (c *Client) hydrate() {
	for name, load := range map[string]func() error{
		"brands":     c.brands.Load,
		"styles":     c.styles.Load,
		"categories": c.categories.Load,
	} {
		if err := load(); err != nil {
			// A broken mirror never breaks startup.
			slog.Warn("dropping broken cache mirror", "resource", name, "error", err)
			if derr := c.parts.General.Delete("cache:" + name); derr != nil {
				slog.Warn("cache mirror delete failed", "key", "cache:"+name, "error", derr)
			}
		}
	}
}

// Bus exposes the session event bus for UI subscribers.
func (c *Client) Bus() *events.Bus {
	return c.bus
}

// Session exposes the session state machine.
func (c *Client) Session() *auth.Manager {
	return c.auth
}

func (c *Client) clearCaches() {
	c.brands.Clear()
	c.styles.Clear()
	c.categories.Clear()
	c.popular.Clear()
	c.favorites.Clear()
	c.profile.Clear()
	c.products.Purge()
}

// Close releases idle network resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
