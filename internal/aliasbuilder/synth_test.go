package aliasbuilder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aslstream/fingerspell/pkg/provider/llm"
	llmmock "github.com/aslstream/fingerspell/pkg/provider/llm/mock"
)

func TestSynthesizeValidatesAndScoresAliases(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[{"surface":"AWS","aliases":["AW6","A W S","ZZZZZZ"]}]`,
		},
	}
	s := NewSynthesizer(provider, 50, 50, 0)

	got, err := s.Synthesize(context.Background(), []string{"aws"})
	require.NoError(t, err)

	aliases, ok := got["AWS"]
	require.True(t, ok, "expected surface AWS in result, got %v", got)
	require.NotEmpty(t, aliases)
	for _, a := range aliases {
		assert.NotEqual(t, "ZZZZZZ", a.Alias, "ZZZZZZ should have been rejected: edit distance too large")
	}
}

func TestSynthesizeDropsSurfacesOutsideTheBatch(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[{"surface":"UNRELATED","aliases":["U N R E L A T E D"]}]`,
		},
	}
	s := NewSynthesizer(provider, 50, 50, 0)

	got, err := s.Synthesize(context.Background(), []string{"aws"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSynthesizeSurfaceWithNoValidAliasesIsOmitted(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[{"surface":"AWS","aliases":["COMPLETELYDIFFERENT"]}]`,
		},
	}
	s := NewSynthesizer(provider, 50, 50, 0)

	got, err := s.Synthesize(context.Background(), []string{"aws"})
	require.NoError(t, err)
	_, ok := got["AWS"]
	assert.False(t, ok, "expected AWS to be omitted, got %v", got["AWS"])
}

func TestSynthesizeReturnsErrorOnMalformedResponse(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "not json at all"},
	}
	s := NewSynthesizer(provider, 50, 50, 0)

	_, err := s.Synthesize(context.Background(), []string{"aws"})
	assert.Error(t, err)
}
