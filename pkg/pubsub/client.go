package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("pubsub: gcp project id is required")
	errNoTopic           = errors.New("pubsub: order events topic is required")
	errClosed            = errors.New("pubsub: client not initialized")
)

// Client owns the Pub/Sub connection and the publishers handed out from it.
// Publishers are cached per topic and flushed on Close.
type Client struct {
	client     *pubsub.Client
	project    string
	orderTopic string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails fast when the order events topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	orderTopic, err := topicPath(project, cfg.OrderEventsTopic)
	if err != nil {
		return nil, err
	}

	conn, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: dial: %w", err)
	}
	c := &Client{
		client:     conn,
		project:    project,
		orderTopic: orderTopic,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", orderTopic), "pubsub.ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	creds := strings.TrimSpace(gcp.CredentialsJSON)
	if creds == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
}

// topicPath expands a bare topic id to its resource name. Names that are
// already fully qualified pass through.
func topicPath(project, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	switch {
	case topic == "":
		return "", errNoTopic
	case strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/"):
		return topic, nil
	case project == "":
		return "", errProjectIDRequired
	}
	return "projects/" + project + "/topics/" + topic, nil
}

// Publisher returns the cached publisher for topic, creating it on first use.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name, err := topicPath(c.project, topic)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	c.publishers[name] = p
	return p
}

func (c *Client) OrderEventsPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.orderTopic)
}

// Ping confirms the order events topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errClosed
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.orderTopic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: topic %s does not exist", c.orderTopic)
	default:
		return fmt.Errorf("pubsub: get topic %s: %w", c.orderTopic, err)
	}
}

// Close flushes every publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}
