// Copyright (c) 2025, the Requestarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/requestarr/requestarr/internal/models"
)

const (
	baseBackoff = 30 * time.Second
	maxBackoff  = 10 * time.Minute
)

// ErrBackingOff is returned while an instance is cooling down after repeated
// failures.
var ErrBackingOff = errors.New("instance is backing off after failures")

type failureState struct {
	count       int
	lastAttempt time.Time
}

// backoff returns how long to wait after count consecutive failures.
func (f *failureState) backoff() time.Duration {
	d := baseBackoff << (f.count - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// ClientPool hands out one client per instance, built lazily from the
// instance store. Instances that keep failing are put on an exponential
// cooldown so a dead Radarr does not get hammered on every approval.
type ClientPool struct {
	mu             sync.RWMutex
	clients        map[int]*Client
	failures       map[int]*failureState
	store          *models.InstanceStore
	timeoutSeconds int
	now            func() time.Time
}

func NewClientPool(store *models.InstanceStore, timeoutSeconds int) *ClientPool {
	return &ClientPool{
		clients:        make(map[int]*Client),
		failures:       make(map[int]*failureState),
		store:          store,
		timeoutSeconds: timeoutSeconds,
		now:            time.Now,
	}
}

// Get returns the client for an instance, creating it on first use.
func (p *ClientPool) Get(ctx context.Context, instanceID int) (*Client, error) {
	p.mu.RLock()
	if failure, ok := p.failures[instanceID]; ok && failure.count > 0 {
		if remaining := failure.backoff() - p.now().Sub(failure.lastAttempt); remaining > 0 {
			p.mu.RUnlock()
			return nil, errors.Wrapf(ErrBackingOff, "retry in %s", remaining.Round(time.Second))
		}
	}
	client, ok := p.clients[instanceID]
	p.mu.RUnlock()
	if ok {
		return client, nil
	}

	instance, err := p.store.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	apiKey, err := p.store.GetDecryptedAPIKey(instance)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt api key")
	}

	client = NewClient(instance.Host, apiKey, instance.TLSSkipVerify, p.timeoutSeconds)

	p.mu.Lock()
	p.clients[instanceID] = client
	p.mu.Unlock()

	return client, nil
}

// RecordFailure marks an attempt against the instance as failed, extending
// its cooldown.
func (p *ClientPool) RecordFailure(instanceID int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	failure, ok := p.failures[instanceID]
	if !ok {
		failure = &failureState{}
		p.failures[instanceID] = failure
	}
	failure.count++
	failure.lastAttempt = p.now()

	log.Warn().Int("instanceID", instanceID).Int("failures", failure.count).
		Dur("backoff", failure.backoff()).Msg("Instance failure recorded")
}

// RecordSuccess clears the instance's failure history.
func (p *ClientPool) RecordSuccess(instanceID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, instanceID)
}

// Invalidate drops the cached client, e.g. after the instance's host or key
// changed.
func (p *ClientPool) Invalidate(instanceID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, instanceID)
	delete(p.failures, instanceID)
}
