package connection_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/internal/drivertest"
)

func TestRegistry_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	base := connection.NewRegistry()
	base.Register("Page", func(owner *connection.ChannelOwner) (connection.Object, error) {
		return owner, nil
	})

	clone := base.Clone()
	clone.Register("Frame", func(owner *connection.ChannelOwner) (connection.Object, error) {
		return owner, nil
	})

	assert.Equal(t, []string{"Page"}, base.Types())
	assert.Equal(t, []string{"Frame", "Page"}, clone.Types())

	_, ok := clone.Lookup("Frame")
	assert.True(t, ok)
	_, ok = base.Lookup("Frame")
	assert.False(t, ok)
}

func TestRegistry_FactoryErrorIsFatal(t *testing.T) {
	t.Parallel()

	registry := connection.NewRegistry()
	registry.Register("Broken", func(owner *connection.ChannelOwner) (connection.Object, error) {
		return nil, errors.New("initializer references unknown object")
	})

	d := drivertest.New(t)
	r, w := d.ClientStreams()
	conn := connection.NewWithOptions(r, w, connection.Options{Registry: registry})
	defer conn.Close()

	d.Create("", "Broken", "broken", nil)

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for connection to fail")
	}

	var desync *connection.DesyncError
	require.ErrorAs(t, conn.Err(), &desync)
	assert.Equal(t, "broken", desync.GUID)
	_, ok := conn.Object("broken")
	assert.False(t, ok)
}
