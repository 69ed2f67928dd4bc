package domain_test

import (
	"testing"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestPortBlock_Overlaps(t *testing.T) {
	a := domain.PortBlock{Base: 8010, Size: 3}

	tests := []struct {
		name  string
		other domain.PortBlock
		want  bool
	}{
		{"Same", domain.PortBlock{Base: 8010, Size: 3}, true},
		{"Adjacent Above", domain.PortBlock{Base: 8013, Size: 3}, false},
		{"Adjacent Below", domain.PortBlock{Base: 8007, Size: 3}, false},
		{"Partial", domain.PortBlock{Base: 8012, Size: 3}, true},
		{"Enclosing", domain.PortBlock{Base: 8000, Size: 30}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(a))
		})
	}
}

func TestPortBlock_Layout(t *testing.T) {
	b := domain.PortBlock{Base: 8010, Size: 6}

	assert.Equal(t, 8016, b.End())
	assert.Equal(t, 8010, b.MPCPortBase())
	assert.Equal(t, 8013, b.ClientPortBase())
	assert.True(t, b.Contains(8015))
	assert.False(t, b.Contains(8016))
	assert.Equal(t, "[8010,8016)", b.String())
}
