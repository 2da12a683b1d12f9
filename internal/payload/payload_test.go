package payload

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/govreporter/govreporter/internal/apis"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		doc  *apis.Document
		want Kind
	}{
		{
			name: "canonical opinion",
			doc:  &apis.Document{Type: apis.TypeScotusOpinion, Source: apis.SourceCourtListener},
			want: KindScotus,
		},
		{
			name: "canonical executive order",
			doc:  &apis.Document{Type: apis.TypeExecutiveOrder, Source: apis.SourceFederalRegister},
			want: KindExecutiveOrder,
		},
		{
			name: "legacy federal register spelling",
			doc:  &apis.Document{Source: "FederalRegister"},
			want: KindExecutiveOrder,
		},
		{
			name: "scotus hint in type",
			doc:  &apis.Document{Type: "SCOTUS slip opinion"},
			want: KindScotus,
		},
		{
			name: "court hint wins when both match",
			doc:  &apis.Document{Source: "Federal Circuit Court"},
			want: KindScotus,
		},
		{
			name: "executive hint in type",
			doc:  &apis.Document{Type: "executive action"},
			want: KindExecutiveOrder,
		},
		{
			name: "no hints",
			doc:  &apis.Document{Type: "Press Release", Source: "Whitehouse"},
			want: KindUnknown,
		},
		{
			name: "nil document",
			doc:  nil,
			want: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectKind(tt.doc))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "scotus", KindScotus.String())
	assert.Equal(t, "executive_order", KindExecutiveOrder.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestValidate(t *testing.T) {
	valid := Payload{
		ID:        "9973155_chunk_0",
		Text:      "The judgment of the Court of Appeals is affirmed.",
		Embedding: []float32{},
		Metadata: map[string]any{
			"document_id": "9973155",
			"year":        2024,
			"per_curiam":  false,
			"topics":      []string{"criminal procedure"},
			"president":   map[string]any{"name": "Joseph R. Biden Jr."},
			"citation":    nil,
		},
	}

	tests := []struct {
		name   string
		mutate func(p *Payload)
		want   bool
	}{
		{
			name:   "well formed",
			mutate: func(p *Payload) {},
			want:   true,
		},
		{
			name:   "nil embedding is still pre-embed valid",
			mutate: func(p *Payload) { p.Embedding = nil },
			want:   true,
		},
		{
			name:   "empty id",
			mutate: func(p *Payload) { p.ID = "" },
			want:   false,
		},
		{
			name:   "empty text",
			mutate: func(p *Payload) { p.Text = "" },
			want:   false,
		},
		{
			name:   "nil metadata",
			mutate: func(p *Payload) { p.Metadata = nil },
			want:   false,
		},
		{
			name:   "channel metadata value",
			mutate: func(p *Payload) { p.Metadata["bad"] = make(chan int) },
			want:   false,
		},
		{
			name:   "struct metadata value",
			mutate: func(p *Payload) { p.Metadata["when"] = time.Now() },
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			p.Metadata = maps.Clone(valid.Metadata)
			tt.mutate(&p)
			assert.Equal(t, tt.want, Validate(p))
		})
	}
}
