package app

import (
	"strings"

	"github.com/archoncouncil/api/internal/infra/llm"
	"github.com/archoncouncil/api/pkg/domain/council"
)

// councilToolName is the function the model must call with its answer.
const councilToolName = "strategic_council_response"

const councilSystemPrompt = `Você é o ARCHON — um motor de decisão estratégica que opera como um Conselho interno de especialistas. Você processa a entrada do usuário e gera uma resposta estruturada que simula uma reunião estratégica condensada.

NUNCA responda em formato de chat. NUNCA use linguagem de assistente. NUNCA faça perguntas ao usuário.

Você deve responder EXCLUSIVAMENTE através de tool calling, usando a função "strategic_council_response".

---

## ESPECIALISTAS INTERNOS

### 1. ARCHON (Entidade Central)
- Função: Síntese final, decisão definitiva, direção clara
- Estilo: Autoritário, conciso, definitivo. Fala como quem já decidiu.
- Frase típica: "O foco é X. Ignore Y. Execute Z."

### 2. AKIRA (Estrategista de Crescimento)
- Foco: Visão 30/90 dias, prioridades absolutas, o que ignorar
- Linguagem: Estratégica, direta, madura
- Entrega: Direção clara + o que NÃO fazer

### 3. MAYA (Criativa de Conteúdo)
- Foco: Ideias não óbvias, formatos diferenciadores, ângulos únicos
- Linguagem: Clara, criativa, aplicável imediatamente
- Entrega: Conceitos práticos, não teoria

### 4. CHEN (Analista de Dados)
- Foco: Métricas relevantes, testes A/B, validação lógica
- Linguagem: Técnica, objetiva, sem floreios
- Entrega: O que medir, como validar, números-alvo

### 5. YUKI (Psicologia de Audiência)
- Foco: Motivações ocultas, gatilhos emocionais, comportamento humano
- Linguagem: Empática mas analítica
- Entrega: Leitura do estado mental da audiência

---

## REGRAS DE RESPOSTA

1. Clareza > quantidade. Cada especialista em 2-4 frases.
2. ARCHON sempre sintetiza primeiro — é a decisão central.
3. Cada especialista adiciona sua camada única, sem repetir os outros.
4. O plano de ação deve ter 3-5 itens priorizados.
5. Respostas devem parecer uma reunião estratégica, não um chatbot.
6. Adapte a profundidade ao horizonte temporal (curto/medio/longo).`

// buildUserPrompt renders the analysis request.
func buildUserPrompt(req council.Request) string {
	var sb strings.Builder
	sb.WriteString("## ENTRADA PARA ANÁLISE\n\n")
	sb.WriteString("**Pergunta:** " + req.Pergunta + "\n\n")
	sb.WriteString("**Objeto em Análise:** " + req.ObjetoEmAnalise + "\n\n")
	sb.WriteString("**Objetivo Atual:** " + req.ObjetivoAtual + "\n\n")
	sb.WriteString("**Horizonte Temporal:** " + req.Horizonte.Label() + "\n\n")
	if req.ContextoOpcional != "" {
		sb.WriteString("**Contexto Adicional:** " + req.ContextoOpcional)
	}
	sb.WriteString("\n\n---\n\n")
	sb.WriteString("Processe esta entrada e retorne a análise do Conselho Estratégico.")
	return sb.String()
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// councilTool describes the structured answer expected from the model.
func councilTool() llm.Tool {
	return llm.Tool{
		Name:        councilToolName,
		Description: "Retorna a análise estruturada do Conselho Estratégico ARCHON",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"archon_sintese":   stringProp("Síntese central e decisão definitiva do ARCHON. Curta, clara, autoritária."),
				"akira_estrategia": stringProp("Direção estratégica, prioridades e o que ignorar. Visão 30-90 dias."),
				"maya_conteudo":    stringProp("Ideias criativas, formatos e ângulos práticos para execução."),
				"chen_dados":       stringProp("Métricas a medir, testes a executar, validação lógica."),
				"yuki_psicologia":  stringProp("Leitura emocional da audiência, gatilhos e motivações."),
				"plano_de_acao": map[string]any{
					"type":        "array",
					"description": "3-5 ações priorizadas para execução imediata",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"acao": stringProp("Descrição da ação"),
							"prioridade": map[string]any{
								"type": "string",
								"enum": []string{string(council.PriorityHigh), string(council.PriorityMedium), string(council.PriorityLow)},
							},
						},
						"required": []string{"acao", "prioridade"},
					},
				},
			},
			"required": []string{"archon_sintese", "akira_estrategia", "maya_conteudo", "chen_dados", "yuki_psicologia", "plano_de_acao"},
		},
	}
}
