package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDocument_PlainJSON(t *testing.T) {
	doc, ok := ExtractDocument(`{"action":"QUERY","confidence":0.92}`)
	require.True(t, ok)
	assert.Equal(t, "QUERY", doc.Action)
	assert.Equal(t, 0.92, doc.Confidence)
}

func TestExtractDocument_CodeFence(t *testing.T) {
	text := "Claro! Aqui esta o plano:\n```json\n{\"type\":\"SELECT\",\"table\":\"TB_CONTATOS\",\"limit\":5}\n```\nEspero que ajude."
	doc, ok := ExtractDocument(text)
	require.True(t, ok)
	assert.Equal(t, "SELECT", doc.Type)
	assert.Equal(t, "TB_CONTATOS", doc.Table)
}

func TestExtractDocument_LargestObjectWins(t *testing.T) {
	text := `{"action":"CHAT"} e tambem {"action":"QUERY","table":"TB_VENDAS","fields":["VALOR"]}`
	doc, ok := ExtractDocument(text)
	require.True(t, ok)
	assert.Equal(t, "QUERY", doc.Action)
	assert.Equal(t, "TB_VENDAS", doc.Table)
}

func TestExtractDocument_NestedObject(t *testing.T) {
	text := `{"resultado": {"action":"QUERY","table":"TB_CONTATOS"}, "nota": "ok"}`
	doc, ok := ExtractDocument(text)
	require.True(t, ok)
	assert.Equal(t, "TB_CONTATOS", doc.Table)
}

func TestExtractDocument_RejectsPlaceholders(t *testing.T) {
	_, ok := ExtractDocument(`{"action":"QUERY","table":"{{tabela}}"}`)
	assert.False(t, ok)

	_, ok = ExtractDocument(`{"action":"QUERY","table":"<NOME_DA_TABELA>"}`)
	assert.False(t, ok)
}

func TestExtractDocument_RequiresActionOrTypeKey(t *testing.T) {
	_, ok := ExtractDocument(`{"answer":"tudo bem e voce?"}`)
	assert.False(t, ok)
}

func TestExtractDocument_BracesInsideStrings(t *testing.T) {
	text := `prefixo {"action":"QUERY","table":"TB_CONTATOS","filters":[{"field":"NOME","op":"LIKE","value":"%{estranho%"}]} sufixo`
	doc, ok := ExtractDocument(text)
	require.True(t, ok)
	require.Len(t, doc.Filters, 1)
	assert.Equal(t, "%{estranho%", doc.Filters[0].Value)
}

func TestExtractDocument_ProseOnly(t *testing.T) {
	_, ok := ExtractDocument("Desculpe, nao entendi a pergunta.")
	assert.False(t, ok)

	_, ok = ExtractDocument("")
	assert.False(t, ok)
}

func TestStripDialogueMarkers(t *testing.T) {
	text := "Usuario: oi\nAssistente: Tudo bem por aqui!\nResposta: posso ajudar?"
	assert.Equal(t, "oi\nTudo bem por aqui!\nposso ajudar?", StripDialogueMarkers(text))

	assert.Equal(t, "sem marcadores", StripDialogueMarkers("  sem marcadores  "))
}
