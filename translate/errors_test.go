package translate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelThroughWrapping(t *testing.T) {
	base := Errorf(KindCredentialsExhausted, "hosted", "all 3 keys exhausted")
	wrapped := fmt.Errorf("translate batch: %w", base)

	assert.True(t, errors.Is(wrapped, ErrCredentialsExhausted))
	assert.False(t, errors.Is(wrapped, ErrTimeout))
	assert.Equal(t, KindCredentialsExhausted, KindOf(wrapped))
	assert.Equal(t, "hosted: all_credentials_exhausted: all 3 keys exhausted", base.Error())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindValidation, Key: "item.sword", Message: "duplicate key", Err: errors.New("boom")}
	assert.Equal(t, "validation_error: duplicate key (key=item.sword): boom", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindTranslationFailed, KindOf(errors.New("plain")))
	assert.Equal(t, KindTimeout, KindOf(NewError(KindTimeout, "ollama", "deadline", nil)))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Errorf(KindServiceUnavailable, "", "503"), true},
		{Errorf(KindTranslationFailed, "", "bad json"), true},
		{Errorf(KindTimeout, "", "slow"), false},
		{Errorf(KindModelNotFound, "", "no model"), false},
		{Errorf(KindValidation, "", "bad"), false},
		{nil, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsRetryable(c.err), "%v", c.err)
	}
}

func TestKindIsValidation(t *testing.T) {
	assert.True(t, KindValidation.IsValidation())
	assert.True(t, KindExternalToolMissing.IsValidation())
	assert.False(t, KindTimeout.IsValidation())
}
