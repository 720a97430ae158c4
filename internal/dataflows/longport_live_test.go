package dataflows

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against the real Longport API when credentials are exported.
func TestLongportDisplayNameLive(t *testing.T) {
	key, secret, token := os.Getenv("LONGPORT_APP_KEY"), os.Getenv("LONGPORT_APP_SECRET"), os.Getenv("LONGPORT_ACCESS_TOKEN")
	if key == "" || secret == "" || token == "" {
		t.Skip("Longport credentials not set")
	}

	client, err := NewLongportClient(key, secret, token)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	name, err := client.DisplayName(ctx, "BABA")
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	t.Logf("BABA: %s", name)
}
