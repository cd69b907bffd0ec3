package fcm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
)

func TestFieldsOf(t *testing.T) {
	t.Run("Nil notification", func(t *testing.T) {
		assert.Equal(t, fcm.Fields{}, fcm.FieldsOf(nil))
	})

	t.Run("Android notification", func(t *testing.T) {
		n := fcm.NewAndroidNotification("Title", "Body").
			SetChannelID("alerts").
			SetIcon("ic_bell").
			SetBodyLocalization("BODY_KEY", "a", "b")
		require.NoError(t, n.SetColor("#00FF00"))

		f := fcm.FieldsOf(n)
		assert.Equal(t, "Title", f.Title)
		assert.Equal(t, "Body", f.Body)
		assert.Equal(t, "alerts", f.ChannelID)
		assert.Equal(t, "ic_bell", f.Icon)
		assert.Equal(t, "#00FF00", f.Color)
		assert.Equal(t, "BODY_KEY", f.BodyLocKey)
		assert.Equal(t, []string{"a", "b"}, f.BodyLocArgs)
		assert.Nil(t, f.Badge)
		assert.False(t, f.Silent)
	})

	t.Run("Silent iOS notification drops the badge", func(t *testing.T) {
		n := fcm.NewIOSNotification("Sync", "").SetBadge(3).SetSound("default")
		require.NoError(t, n.SetSilent())

		f := fcm.FieldsOf(n)
		assert.True(t, f.Silent)
		assert.True(t, f.ContentAvailable)
		assert.Nil(t, f.Badge)
		assert.Empty(t, f.Sound)
	})

	t.Run("iOS badge", func(t *testing.T) {
		f := fcm.FieldsOf(fcm.NewIOSNotification("t", "b").SetBadge(0).SetSubTitle("sub"))
		require.NotNil(t, f.Badge)
		assert.Equal(t, 0, *f.Badge)
		assert.Equal(t, "sub", f.SubTitle)
	})
}
