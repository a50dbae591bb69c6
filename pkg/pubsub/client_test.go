package pubsub

import (
	"context"
	"testing"

	"github.com/ecolote/leadengine/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/lead-events", topicResourceName("p1", "lead-events"))
	assert.Equal(t, "projects/other/topics/x", topicResourceName("p1", "projects/other/topics/x"))
	assert.Equal(t, "", topicResourceName("p1", "  "))
	assert.Equal(t, "", topicResourceName("", "lead-events"))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{LeadEventsTopic: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("lead-events"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
