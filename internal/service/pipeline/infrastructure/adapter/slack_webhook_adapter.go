// internal/service/pipeline/infrastructure/adapter/slack_webhook_adapter.go
package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"dealflow/internal/pkg/httpclient"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
)

// SlackWebhookAdapter 实现了 port.EventSink，把事件转成 Slack incoming webhook 消息。
// 只关心新行动记录和状态变化两类事件，其余事件直接忽略。
type SlackWebhookAdapter struct {
	webhookURL string
	client     *httpclient.Client
}

// NewSlackWebhookAdapter webhookURL 为空时返回 nil，调用方据此跳过注册
func NewSlackWebhookAdapter(webhookURL string, client *httpclient.Client) *SlackWebhookAdapter {
	if strings.TrimSpace(webhookURL) == "" {
		return nil
	}
	if client == nil {
		client = httpclient.NewClient(nil)
	}
	return &SlackWebhookAdapter{webhookURL: webhookURL, client: client}
}

func (a *SlackWebhookAdapter) Name() string { return "slack" }

// Deliver 实现 port.EventSink
func (a *SlackWebhookAdapter) Deliver(ctx context.Context, event *domain.PipelineEvent) error {
	msg, ok := BuildSlackMessage(event)
	if !ok {
		return nil
	}
	if err := a.client.PostJSON(ctx, a.webhookURL, nil, msg, nil); err != nil {
		return errors.Wrap(err, "post slack webhook")
	}
	return nil
}

// SlackMessage 是 incoming webhook 的请求体
type SlackMessage struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks,omitempty"`
}

type SlackBlock struct {
	Type   string      `json:"type"`
	Text   *SlackText  `json:"text,omitempty"`
	Fields []SlackText `json:"fields,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) SlackText { return SlackText{Type: "mrkdwn", Text: s} }

// BuildSlackMessage 返回 false 表示该事件不需要通知
func BuildSlackMessage(event *domain.PipelineEvent) (*SlackMessage, bool) {
	if event == nil || event.Deal == nil {
		return nil, false
	}
	deal := event.Deal
	dealLine := fmt.Sprintf("*%s* / %s", deal.ProductName, deal.ProposalMenu)

	switch event.Type {
	case domain.EventActionLogCreated:
		if event.ActionLog == nil {
			return nil, false
		}
		log := event.ActionLog
		header := fmt.Sprintf(":memo: New action log: %s", log.Title)
		fields := []SlackText{
			mrkdwn("*Deal*\n" + dealLine),
			mrkdwn("*Representative*\n" + deal.Representative),
			mrkdwn("*Status*\n" + deal.Status.Title()),
			mrkdwn("*Action date*\n" + log.ActionDate.String()),
		}
		if event.IntroducerName != "" {
			fields = append(fields, mrkdwn("*Introducer*\n"+event.IntroducerName))
		}
		if deal.EstimatedAmount != nil {
			fields = append(fields, mrkdwn("*Estimated amount*\n"+formatAmount(*deal.EstimatedAmount)))
		}
		blocks := []SlackBlock{
			{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: header}},
			{Type: "section", Fields: fields},
		}
		if log.ActionDetails != "" {
			blocks = append(blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: log.ActionDetails}})
		}
		if next := nextActionLine(log.NextAction, log.NextActionDate); next != "" {
			blocks = append(blocks, SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: next}})
		}
		return &SlackMessage{Text: header + " (" + deal.ProductName + ")", Blocks: blocks}, true

	case domain.EventDealStatusChanged:
		if event.StatusChange == nil {
			return nil, false
		}
		header := fmt.Sprintf(":arrows_counterclockwise: Status changed: %s → %s",
			event.StatusChange.From.Title(), event.StatusChange.To.Title())
		if event.StatusChange.To == domain.StatusWon {
			header = ":tada: " + header
		}
		blocks := []SlackBlock{
			{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: header}},
			{Type: "section", Fields: []SlackText{
				mrkdwn("*Deal*\n" + dealLine),
				mrkdwn("*Representative*\n" + deal.Representative),
			}},
		}
		return &SlackMessage{Text: header + " (" + deal.ProductName + ")", Blocks: blocks}, true
	}
	return nil, false
}

func nextActionLine(action string, date *domain.Date) string {
	if action == "" {
		return ""
	}
	line := "*Next action:* " + action
	if date != nil && !date.IsZero() {
		line += " (" + date.String() + ")"
	}
	return line
}

// formatAmount 按千分位格式化金额，例如 5000000 -> ¥5,000,000
func formatAmount(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-¥" + b.String()
	}
	return "¥" + b.String()
}
