package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Quantos Contatos", "quantos contatos"},
		{"strips accents", "contato de João Conceição", "contato de joao conceicao"},
		{"collapses punctuation", "quem  é... o gerente?!", "quem e o gerente"},
		{"keeps digits", "vendas em 2024", "vendas em 2024"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("quantos contatos temos", "quantos contatos temos"))
	assert.Equal(t, 0.0, Jaccard("", ""))
	assert.Equal(t, 0.0, Jaccard("vendas hoje", "clientes ativos"))

	// 2 shared words out of 4 distinct.
	got := Jaccard("quantos contatos temos", "quantos contatos existem")
	assert.InDelta(t, 0.5, got, 1e-9)

	// Word sets ignore duplicates.
	assert.Equal(t, 1.0, Jaccard("vendas vendas", "vendas"))
}
