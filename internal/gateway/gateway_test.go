package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteRequestIsSingleUseAndExpiring(t *testing.T) {
	expires := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	req := inviteRequest(expires)
	require.NotNil(t, req)
	assert.Equal(t, 1, req.MemberLimit)
	assert.Equal(t, expires.Unix(), req.ExpireUnixtime)
}
