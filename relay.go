package tollgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/receiver"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/retry"
	"github.com/xraph/tollgate/types"
)

// ──────────────────────────────────────────────────
// Relay
// ──────────────────────────────────────────────────

// PublishInput is one relay submission. An empty IdempotencyKey is
// replaced by a generated one, which disables dedup for that call.
type PublishInput struct {
	ClientID       string
	Message        string
	Meta           map[string]any
	APIKey         string
	IdempotencyKey string
}

// Validate checks the body fields Publish requires.
func (in PublishInput) Validate() error {
	var errs ValidationErrors
	if in.ClientID == "" {
		errs.Add("clientId", "is required")
	}
	if in.Message == "" {
		errs.Add("message", "is required")
	}
	return errs.Err()
}

// PublishResult describes the relay record a Publish call resolved to.
type PublishResult struct {
	RelayID        id.RelayID
	Status         relay.Status
	IdempotencyKey string
	Replayed       bool
	Attempts       int
}

// Authenticate resolves the client owning apiKey and checks that it is
// clientID and active.
func (g *Gateway) Authenticate(ctx context.Context, clientID, apiKey string) (*client.Client, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	c, err := g.store.GetClientByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if c.ID != clientID {
		return nil, ErrInvalidClient
	}
	if !c.Active() || subtle.ConstantTimeCompare([]byte(c.APIKey), []byte(apiKey)) != 1 {
		return nil, ErrInvalidCredential
	}
	return c, nil
}

// Publish authenticates the caller, records the message under its
// idempotency key and forwards it downstream with bounded retries. A known
// key returns the recorded outcome without another delivery. Once the
// record is created the delivery cycle ignores cancellation of ctx.
func (g *Gateway) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if in.APIKey == "" {
		return nil, ErrMissingCredential
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	c, err := g.Authenticate(ctx, in.ClientID, in.APIKey)
	if err != nil {
		g.logger.Warn("relay rejected", "client_id", in.ClientID, "error", err)
		return nil, err
	}

	key := in.IdempotencyKey
	if key == "" {
		key = g.newKey()
	}

	rec, replayed, err := g.relays.Claim(ctx, key, func(ctx context.Context) (*relay.Record, error) {
		meta := in.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		r := &relay.Record{
			Entity:         types.NewEntityAt(g.now()),
			ID:             id.NewRelayID(),
			ClientID:       c.ID,
			Message:        in.Message,
			Meta:           meta,
			IdempotencyKey: key,
			Status:         relay.StatusPending,
		}
		if err := g.store.CreateRelay(ctx, r); err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		g.logger.Info("relay already processed",
			"client_id", c.ID,
			"relay_id", rec.ID.String(),
			"status", string(rec.Status),
		)
		g.plugins.EmitReplay(ctx, KeyspaceRelay, key)
		return &PublishResult{RelayID: rec.ID, Status: rec.Status, IdempotencyKey: key, Replayed: true}, nil
	}

	g.plugins.EmitRelayPublished(ctx, rec)

	return g.deliver(context.WithoutCancel(ctx), rec, in.Meta)
}

// deliver runs the retry cycle for a PENDING record and stores its
// terminal status.
func (g *Gateway) deliver(ctx context.Context, rec *relay.Record, meta map[string]any) (*PublishResult, error) {
	relayID := rec.ID.String()
	env := receiver.Envelope{
		ClientID:       rec.ClientID,
		Message:        rec.Message,
		Meta:           meta,
		IdempotencyKey: rec.IdempotencyKey,
	}

	policy := g.retryPolicy
	next := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.logger.Warn("relay attempt failed, retrying",
			"relay_id", relayID,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		g.plugins.EmitRelayRetried(ctx, relayID, attempt, delay, err)
		if next != nil {
			next(attempt, delay, err)
		}
	}

	attempts := 0
	_, derr := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*receiver.Ack, error) {
		attempts = attempt
		actx, cancel := context.WithTimeout(ctx, g.relayTimeout)
		defer cancel()
		return g.receiver.Deliver(actx, env)
	})

	status := relay.StatusSent
	if derr != nil {
		status = relay.StatusFailed
	}

	at := g.now()
	if err := g.store.CompleteRelay(ctx, rec.ID, status, at); err != nil {
		g.logger.Error("failed to record relay outcome",
			"relay_id", relayID,
			"status", string(status),
			"error", err,
		)
		return nil, err
	}

	at = at.UTC()
	rec.Status = status
	rec.LastAttempt = &at
	rec.TouchAt(at)
	g.relays.Remember(ctx, rec.IdempotencyKey, rec)

	if derr != nil {
		g.logger.Error("failed to relay message",
			"relay_id", relayID,
			"client_id", rec.ClientID,
			"attempts", attempts,
			"error", derr,
			"action", "relay_failed",
		)
		g.plugins.EmitRelayFailed(ctx, rec, attempts, derr)
		return nil, &DeliveryError{RelayID: relayID, Attempts: attempts, Err: derr}
	}

	g.logger.Info("relayed successfully",
		"relay_id", relayID,
		"client_id", rec.ClientID,
		"attempts", attempts,
		"action", "relay_sent",
	)
	g.plugins.EmitRelayDelivered(ctx, rec, attempts)

	return &PublishResult{
		RelayID:        rec.ID,
		Status:         status,
		IdempotencyKey: rec.IdempotencyKey,
		Attempts:       attempts,
	}, nil
}

// GetRelay retrieves a relay record by id.
func (g *Gateway) GetRelay(ctx context.Context, relayID id.RelayID) (*relay.Record, error) {
	return g.store.GetRelay(ctx, relayID)
}
