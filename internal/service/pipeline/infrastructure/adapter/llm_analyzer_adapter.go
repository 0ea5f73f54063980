// internal/service/pipeline/infrastructure/adapter/llm_analyzer_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"dealflow/internal/pkg/httpclient"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
)

const analysisSystemPrompt = `You review B2B sales activity. Given a deal and its newest action log, reply with a JSON object:
{"statusAppropriate": bool, "suggestedStatus": string, "progressScore": 1-5, "riskFactors": [string],
 "suggestedNextAction": string, "priority": "high"|"medium"|"low", "summary": string}.
Valid statuses: appointment-set, in-negotiation, proposed, under-consideration, pending-approval, won, lost.`

// LLMAnalyzerAdapter 实现了 port.Analyzer，调用 OpenAI 兼容的 chat completions 接口
type LLMAnalyzerAdapter struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	client   *httpclient.Client
}

// NewLLMAnalyzerAdapter endpoint 或 apiKey 为空时返回 nil，表示不启用分析
func NewLLMAnalyzerAdapter(endpoint, apiKey, model string, timeout time.Duration, client *httpclient.Client) *LLMAnalyzerAdapter {
	if endpoint == "" || apiKey == "" {
		return nil
	}
	if client == nil {
		client = httpclient.NewClient(nil)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMAnalyzerAdapter{endpoint: endpoint, apiKey: apiKey, model: model, timeout: timeout, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// analysisInput 是发送给模型的用户消息
type analysisInput struct {
	ActionLog *domain.ActionLog `json:"actionLog"`
	Deal      *domain.Deal      `json:"deal"`
}

// Analyze 实现 port.Analyzer
func (a *LLMAnalyzerAdapter) Analyze(ctx context.Context, log *domain.ActionLog, deal *domain.Deal) (*domain.Analysis, error) {
	input, err := json.Marshal(analysisInput{ActionLog: log, Deal: deal})
	if err != nil {
		return nil, errors.Wrap(err, "encode analysis input")
	}
	req := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: string(input)},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	if err := a.client.PostJSON(ctx, a.endpoint, headers, req, &resp); err != nil {
		return nil, errors.Wrap(err, "call llm")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}
	return ParseAnalysis(resp.Choices[0].Message.Content)
}

// ParseAnalysis 解析模型输出。容忍 ```json 代码块包裹，并把取值限制在合法范围内。
func ParseAnalysis(content string) (*domain.Analysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out domain.Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, errors.Wrap(err, "decode llm analysis")
	}

	switch {
	case out.ProgressScore < 1:
		out.ProgressScore = 1
	case out.ProgressScore > 5:
		out.ProgressScore = 5
	}
	if !out.Priority.Valid() {
		out.Priority = domain.PriorityMedium
	}
	if out.SuggestedStatus != "" && !out.SuggestedStatus.Valid() {
		out.SuggestedStatus = ""
	}
	if out.RiskFactors == nil {
		out.RiskFactors = []string{}
	}
	out.Summary = strings.TrimSpace(out.Summary)
	return &out, nil
}
