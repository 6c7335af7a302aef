// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/requestarr/requestarr/internal/domain"
)

// InstanceSelector persists which instance each media type is scoped to.
type InstanceSelector interface {
	GetSelected(ctx context.Context, instanceType domain.InstanceType) (int, error)
	SetSelected(ctx context.Context, instanceType domain.InstanceType, instanceID int) error
}

// Controller owns section rotation and instance switching on top of the
// Loader.
type Controller struct {
	loader   *Loader
	rotation RotationStore
	selector InstanceSelector
	cache    CacheStore
}

func NewController(loader *Loader, rotation RotationStore, selector InstanceSelector, cache CacheStore) *Controller {
	return &Controller{
		loader:   loader,
		rotation: rotation,
		selector: selector,
		cache:    cache,
	}
}

// ChooseInitialSection picks which section a fresh visit opens on: the one
// after the last shown section in the fixed trending, movies, tv cycle, or
// trending when nothing valid was recorded. The choice is persisted
// immediately so rotation advances exactly once per visit.
func (c *Controller) ChooseInitialSection(ctx context.Context) (domain.Section, error) {
	last, ok, err := c.rotation.LastShown(ctx)
	if err != nil {
		return "", err
	}

	chosen := domain.SectionTrending
	if ok {
		chosen = domain.NextSection(last)
	}

	if err := c.rotation.RecordShown(ctx, chosen); err != nil {
		return "", err
	}
	return chosen, nil
}

// ActivateSection makes a section the visible one, loads its first page, and
// background-preloads the other two so switching to them paints from cache.
func (c *Controller) ActivateSection(ctx context.Context, section domain.Section) error {
	if !section.Valid() {
		return fmt.Errorf("unknown section %q", section)
	}

	scope, err := c.Scope(ctx)
	if err != nil {
		return err
	}

	c.loader.SetVisible(section)

	if err := c.loader.Load(ctx, section, 1, scope); err != nil {
		return err
	}

	go c.preloadOthers(context.WithoutCancel(ctx), section, scope)
	return nil
}

// Start rotates to the next section and activates it. Returns the chosen
// section.
func (c *Controller) Start(ctx context.Context) (domain.Section, error) {
	section, err := c.ChooseInitialSection(ctx)
	if err != nil {
		return "", err
	}
	if err := c.ActivateSection(ctx, section); err != nil {
		return "", err
	}
	return section, nil
}

// LoadMore advances the visible section's pagination when more pages exist
// and nothing is in flight.
func (c *Controller) LoadMore(ctx context.Context, section domain.Section) error {
	snap := c.loader.Snapshot(section)
	if !snap.HasMore || snap.Loading {
		return nil
	}

	scope, err := c.Scope(ctx)
	if err != nil {
		return err
	}
	return c.loader.Load(ctx, section, snap.Page+1, scope)
}

// OnInstanceChanged reacts to the user pointing a media type at a different
// instance: the affected section caches are dropped (trending always, since
// it mixes both types), pagination resets, and the visible section reloads
// under the new scope.
func (c *Controller) OnInstanceChanged(ctx context.Context, instanceType domain.InstanceType, instanceID int) error {
	if !instanceType.Valid() {
		return fmt.Errorf("unknown instance type %q", instanceType)
	}

	if err := c.selector.SetSelected(ctx, instanceType, instanceID); err != nil {
		return err
	}

	affected := []domain.Section{domain.SectionTrending, domain.SectionMovies}
	if instanceType == domain.InstanceTypeTV {
		affected = []domain.Section{domain.SectionTrending, domain.SectionTV}
	}

	for _, section := range affected {
		c.cache.ClearPrefix(ctx, string(section))
		c.loader.ResetSection(section)
	}

	visible := c.loader.Visible()
	for _, section := range affected {
		if section != visible {
			continue
		}
		scope, err := c.Scope(ctx)
		if err != nil {
			return err
		}
		return c.loader.Load(ctx, visible, 1, scope)
	}
	return nil
}

// Visible returns the section currently on screen.
func (c *Controller) Visible() domain.Section {
	return c.loader.Visible()
}

// Scope resolves the currently selected instances into a fetch scope.
func (c *Controller) Scope(ctx context.Context) (InstanceScope, error) {
	moviesID, err := c.selector.GetSelected(ctx, domain.InstanceTypeMovies)
	if err != nil {
		return InstanceScope{}, err
	}
	tvID, err := c.selector.GetSelected(ctx, domain.InstanceTypeTV)
	if err != nil {
		return InstanceScope{}, err
	}
	return InstanceScope{MoviesID: moviesID, TVID: tvID}, nil
}

func (c *Controller) preloadOthers(ctx context.Context, active domain.Section, scope InstanceScope) {
	g, gctx := errgroup.WithContext(ctx)
	for _, section := range domain.SectionOrder {
		if section == active {
			continue
		}
		section := section
		g.Go(func() error {
			c.loader.Preload(gctx, section, scope)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Msg("Section preload did not complete")
	}
}
