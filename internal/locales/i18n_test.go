package locales

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMessage(t *testing.T) {
	Init(DefaultLanguage)

	en := NewLocalizer("en")
	assert.Equal(t, "pong", GetMessage(en, "MsgPong", nil, nil))

	one, many := 1, 5
	assert.Equal(t, "Slow down. Try again in 1 second.",
		GetMessage(en, "MsgRejectCooldown", map[string]interface{}{"Seconds": one}, &one))
	assert.Equal(t, "Slow down. Try again in 5 seconds.",
		GetMessage(en, "MsgRejectCooldown", map[string]interface{}{"Seconds": many}, &many))

	ru := NewLocalizer("ru")
	assert.Equal(t, "Не так быстро. Повторите через 5 секунд.",
		GetMessage(ru, "MsgRejectCooldown", map[string]interface{}{"Seconds": many}, &many))

	t.Run("UnknownLanguageFallsBackToDefault", func(t *testing.T) {
		assert.Equal(t, "An owner granted you access.", GetMessage(NewLocalizer("xx"), "MsgYouWereApproved", nil, nil))
	})

	t.Run("UnknownIDIsReturnedAsIs", func(t *testing.T) {
		assert.Equal(t, "MsgDoesNotExist", GetMessage(en, "MsgDoesNotExist", nil, nil))
	})
}

func TestInitWithInvalidLanguage(t *testing.T) {
	Init("not a language!")
	assert.Equal(t, "en", GetDefaultLanguageTag().String())
	Init(DefaultLanguage)
}
