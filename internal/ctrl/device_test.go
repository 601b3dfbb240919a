package ctrl

import (
	"context"
	"fmt"
	"testing"

	md "github.com/JMURv/session-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_DeviceFleet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, testAdmission)
	res := env.signup(t, testPhone, "d1")

	ident, err := env.ctrl.Authenticate(ctx, res.Access, testIP)
	require.NoError(t, err)
	uid := ident.AccountID

	for i := 2; i <= md.MaxDevices; i++ {
		token, err := env.ctrl.RegisterDevice(ctx, uid, fmt.Sprintf("d%d", i))
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	}

	_, err = env.ctrl.RegisterDevice(ctx, uid, "d6")
	assert.ErrorIs(t, err, ErrDeviceLimitExceeded)

	t.Run("ReRegisterKeepsCardinality", func(t *testing.T) {
		_, err := env.ctrl.RegisterDevice(ctx, uid, "d3")
		require.NoError(t, err)

		devices, err := env.ctrl.ListDevices(ctx, uid)
		require.NoError(t, err)
		assert.Len(t, devices, md.MaxDevices)
	})

	require.NoError(t, env.ctrl.RemoveDevice(ctx, uid, "d3"))
	_, err = env.ctrl.RegisterDevice(ctx, uid, "d6")
	require.NoError(t, err)

	devices, err := env.ctrl.ListDevices(ctx, uid)
	require.NoError(t, err)
	require.Len(t, devices, md.MaxDevices)

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.DeviceID)
		assert.True(t, d.Active)
	}
	assert.Contains(t, ids, "d6")
	assert.NotContains(t, ids, "d3")

	t.Run("RemoveUnknown", func(t *testing.T) {
		assert.ErrorIs(t, env.ctrl.RemoveDevice(ctx, uid, "d3"), ErrNotFound)
	})

	t.Run("RemovedDeviceTokenRejected", func(t *testing.T) {
		require.NoError(t, env.ctrl.RemoveDevice(ctx, uid, "d1"))
		_, err := env.ctrl.Authenticate(ctx, res.Access, testIP)
		assert.ErrorIs(t, err, ErrDeviceSessionRevoked)
	})
}
