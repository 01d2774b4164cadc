package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agenticgokit/crewview/internal/protocol"
)

func TestReconnectPolicy(t *testing.T) {
	p := newReconnectPolicy(time.Second, 30*time.Second, 5)

	var delays []time.Duration
	for {
		d, ok := p.Next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}, delays)

	p.Reset()
	d, ok := p.Next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestReconnectPolicyCap(t *testing.T) {
	p := newReconnectPolicy(10*time.Second, 30*time.Second, 4)

	var delays []time.Duration
	for {
		d, ok := p.Next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}, delays)
}

func TestInitGuard(t *testing.T) {
	g := NewInitGuard(4)

	assert.True(t, g.Claim("s1", protocol.KindCrew, "c1"))
	assert.False(t, g.Claim("s1", protocol.KindCrew, "c1"))
	assert.True(t, g.Claim("s2", protocol.KindCrew, "c1"), "pairs are scoped by session")
	assert.True(t, g.Claim("s1", protocol.KindFlow, "c1"), "pairs are scoped by kind")

	g.Release("s1", protocol.KindCrew, "c1")
	assert.True(t, g.Claim("s1", protocol.KindCrew, "c1"))
}
