package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Resume(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// publisherCache keeps one ordered publisher per topic for the life of Run.
// The relay loop is single-threaded so no locking is needed.
type publisherCache struct {
	client pubSubClient
	byName map[string]*gcpPublisher
}

func newPublisherCache(client pubSubClient) *publisherCache {
	return &publisherCache{client: client, byName: make(map[string]*gcpPublisher)}
}

func (c *publisherCache) get(topic string) publisher {
	if p, ok := c.byName[topic]; ok {
		return p
	}
	raw := c.client.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	p := &gcpPublisher{Publisher: raw}
	c.byName[topic] = p
	return p
}

// stop flushes and releases every cached publisher.
func (c *publisherCache) stop() {
	if c == nil {
		return
	}
	for topic, p := range c.byName {
		p.Stop()
		delete(c.byName, topic)
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

func (p *gcpPublisher) Resume(orderingKey string) {
	if p == nil || p.Publisher == nil || orderingKey == "" {
		return
	}
	p.Publisher.ResumePublish(orderingKey)
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
