// Package player turns queue items into element playback. The controller
// owns source resolution, including the two-phase load for direct URLs:
// play the remote stream immediately, fetch a proxied copy in the
// background, and hot-swap it in without losing the playback position.
package player

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/element"
	"github.com/halcyonlabs/kaleido/internal/history"
	"github.com/halcyonlabs/kaleido/internal/media"
)

// Controller resolves items into element sources and drives transport.
type Controller struct {
	log      *zap.Logger
	el       *element.Element
	proxy    Proxy
	resolver Resolver
	history  History
}

// NewController wires a controller. history may be nil.
func NewController(log *zap.Logger, el *element.Element, proxy Proxy, resolver Resolver, hist History) *Controller {
	return &Controller{
		log:      log,
		el:       el,
		proxy:    proxy,
		resolver: resolver,
		history:  hist,
	}
}

// Load resolves the item's locator, loads it into the element, and starts
// playback. An item without a playable source is a logged no-op, not an
// error: the queue entry stays, the transport state does not change.
func (c *Controller) Load(ctx context.Context, item media.Item) error {
	loc := item.Source
	if loc.Empty() {
		c.log.Warn("item has no playable source, skipping load",
			zap.String("item", item.ID),
			zap.String("title", item.Title))
		return nil
	}

	var (
		src    *element.Source
		err    error
		direct bool
	)
	switch loc.Kind {
	case media.SourceOwned:
		var path string
		path, err = c.resolver.Resolve(loc.Ref)
		if err != nil {
			return fmt.Errorf("resolve owned source: %w", err)
		}
		src, err = element.OpenFile(path)
	case media.SourceDirect:
		if path, ok := c.proxy.CachedPath(loc.URL); ok {
			// Phase two already happened on an earlier play.
			src, err = element.OpenFile(path)
		} else {
			src, err = element.OpenURL(loc.URL)
			direct = true
		}
	default:
		return fmt.Errorf("unknown source kind %v", loc.Kind)
	}
	if err != nil {
		return fmt.Errorf("open source for %s: %w", item.ID, err)
	}

	gen := c.el.Load(src)
	if err := c.el.Play(); err != nil {
		return err
	}

	if direct {
		go c.swapProxied(ctx, loc.URL, gen)
	}
	if c.history != nil {
		c.history.Record(history.EventPlayed, item, 0)
	}
	c.log.Info("now playing",
		zap.String("item", item.ID),
		zap.String("title", item.Title),
		zap.String("source", loc.Kind.String()))
	return nil
}

// swapProxied runs phase two of a direct load: cache the URL, then swap the
// local copy into the element at the current offset. Failures leave the
// direct stream playing; only analysis stays degraded.
func (c *Controller) swapProxied(ctx context.Context, url string, gen int) {
	path, err := c.proxy.Fetch(ctx, url)
	if err != nil {
		c.log.Warn("proxy fetch failed, staying on direct stream",
			zap.String("url", url), zap.Error(err))
		return
	}
	src, err := element.OpenFile(path)
	if err != nil {
		c.log.Warn("proxied copy unreadable, staying on direct stream",
			zap.String("path", path), zap.Error(err))
		return
	}
	if err := c.el.Swap(src, gen); err != nil {
		c.log.Warn("source swap failed", zap.String("url", url), zap.Error(err))
		return
	}
	c.log.Info("swapped to proxied source", zap.String("url", url))
}

// Resume continues playback of the loaded source.
func (c *Controller) Resume() error {
	return c.el.Play()
}

// Pause halts playback without unloading the source.
func (c *Controller) Pause() {
	c.el.Pause()
}
