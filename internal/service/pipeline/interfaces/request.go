// internal/service/pipeline/interfaces/request.go
package interfaces

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"dealflow/internal/service/pipeline/application"
	"dealflow/internal/service/pipeline/domain"

	"github.com/pkg/errors"
)

// maxBodyBytes 单个请求体上限
const maxBodyBytes = 1 << 20

// maxInt64Float 等于 2^63
const maxInt64Float = float64(1 << 63)

// FlexInt 接受 JSON 数字或数字字符串，空串和 null 表示 "未设置"。
// Present 区分 "请求里没有这个字段" 与 "显式传了 null"，更新接口据此决定是否清空。
type FlexInt struct {
	Present bool
	Valid   bool
	Value   int64
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	f.Present = true
	f.Valid = false
	f.Value = 0

	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(domain.ErrValidation, "invalid number")
		}
		raw = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if raw == "" {
			return nil
		}
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		f.Value, f.Valid = v, true
		return nil
	}
	// 前端有时会传 "5000000.0"
	fv, err := strconv.ParseFloat(raw, 64)
	// float64(MaxInt64) 会进位成 2^63，必须用 >= 排除
	if err != nil || fv != math.Trunc(fv) || fv >= maxInt64Float || fv < -maxInt64Float {
		return errors.Wrapf(domain.ErrValidation, "invalid integer %s", raw)
	}
	f.Value, f.Valid = int64(fv), true
	return nil
}

// Ptr 未设置时返回 nil
func (f FlexInt) Ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

func (f FlexInt) IntPtr() *int {
	if !f.Valid {
		return nil
	}
	v := int(f.Value)
	return &v
}

// OptionalDate 与 FlexInt 一样区分 "缺省" 与 "显式清空"
type OptionalDate struct {
	Present bool
	Value   *domain.Date
}

func (o *OptionalDate) UnmarshalJSON(data []byte) error {
	o.Present = true
	var d domain.Date
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	if d.IsZero() {
		o.Value = nil
		return nil
	}
	o.Value = &d
	return nil
}

// decodeJSON 严格解码：未知字段（包括更新请求里的 id / createdAt）直接拒绝
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(domain.ErrValidation, "cannot read request body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return errors.Wrapf(domain.ErrValidation, "invalid request body: %v", err)
	}
	return nil
}

type createDealRequest struct {
	ProductName     string        `json:"productName"`
	ProposalMenu    string        `json:"proposalMenu"`
	Representative  string        `json:"representative"`
	IntroducerID    FlexInt       `json:"introducerId"`
	Status          domain.Status `json:"status"`
	Priority        string        `json:"priority"`
	EstimatedAmount FlexInt       `json:"estimatedAmount"`
	ProgressRate    FlexInt       `json:"progressRate"`
	NextAction      string        `json:"nextAction"`
	NextActionDate  OptionalDate  `json:"nextActionDate"`
	Summary         string        `json:"summary"`
}

func (r createDealRequest) command() application.CreateDealCommand {
	return application.CreateDealCommand{
		ProductName:     r.ProductName,
		ProposalMenu:    r.ProposalMenu,
		Representative:  r.Representative,
		IntroducerID:    r.IntroducerID.Ptr(),
		Status:          r.Status,
		Priority:        domain.Priority(r.Priority),
		EstimatedAmount: r.EstimatedAmount.Ptr(),
		ProgressRate:    r.ProgressRate.IntPtr(),
		NextAction:      r.NextAction,
		NextActionDate:  r.NextActionDate.Value,
		Summary:         r.Summary,
	}
}

// updateDealRequest 没有 id / createdAt / updatedAt 字段，出现即被拒绝
type updateDealRequest struct {
	ProductName     *string        `json:"productName"`
	ProposalMenu    *string        `json:"proposalMenu"`
	Representative  *string        `json:"representative"`
	IntroducerID    FlexInt        `json:"introducerId"`
	Status          *domain.Status `json:"status"`
	Priority        *string        `json:"priority"`
	EstimatedAmount FlexInt        `json:"estimatedAmount"`
	ProgressRate    FlexInt        `json:"progressRate"`
	LastContactDate OptionalDate   `json:"lastContactDate"`
	NextAction      *string        `json:"nextAction"`
	NextActionDate  OptionalDate   `json:"nextActionDate"`
	Summary         *string        `json:"summary"`
}

func (r updateDealRequest) patch() domain.DealPatch {
	p := domain.DealPatch{
		ProductName:    r.ProductName,
		ProposalMenu:   r.ProposalMenu,
		Representative: r.Representative,
		Status:         r.Status,
		NextAction:     r.NextAction,
		Summary:        r.Summary,
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	// 可空字段：显式 null / "" 清空
	if r.IntroducerID.Present {
		v := r.IntroducerID.Ptr()
		p.IntroducerID = &v
	}
	if r.EstimatedAmount.Present {
		v := r.EstimatedAmount.Ptr()
		p.EstimatedAmount = &v
	}
	if r.NextActionDate.Present {
		v := r.NextActionDate.Value
		p.NextActionDate = &v
	}
	// 不可空字段：null / "" 视为不修改
	if r.ProgressRate.Valid {
		p.ProgressRate = r.ProgressRate.IntPtr()
	}
	if r.LastContactDate.Value != nil {
		p.LastContactDate = r.LastContactDate.Value
	}
	return p
}

type submitContactRequest struct {
	ProductName    string        `json:"productName"`
	ProposalMenu   string        `json:"proposalMenu"`
	Representative string        `json:"representative"`
	IntroducerID   FlexInt       `json:"introducerId"`
	ActionDate     domain.Date   `json:"actionDate"`
	Title          string        `json:"title"`
	ActionDetails  string        `json:"actionDetails"`
	NextAction     *string       `json:"nextAction"`
	NextActionDate OptionalDate  `json:"nextActionDate"`
	Status         domain.Status `json:"status"`
	Attachments    []string      `json:"attachments"`
}

func (r submitContactRequest) command() application.SubmitContactCommand {
	return application.SubmitContactCommand{
		ProductName:    r.ProductName,
		ProposalMenu:   r.ProposalMenu,
		Representative: r.Representative,
		ActionDate:     r.ActionDate,
		Title:          r.Title,
		ActionDetails:  r.ActionDetails,
		NextAction:     r.NextAction,
		NextActionDate: r.NextActionDate.Value,
		Status:         r.Status,
		IntroducerID:   r.IntroducerID.Ptr(),
		Attachments:    r.Attachments,
	}
}

type createActionLogRequest struct {
	DealID         FlexInt       `json:"dealId"`
	Title          string        `json:"title"`
	ActionDate     domain.Date   `json:"actionDate"`
	ActionDetails  string        `json:"actionDetails"`
	NextAction     string        `json:"nextAction"`
	NextActionDate OptionalDate  `json:"nextActionDate"`
	Status         domain.Status `json:"status"`
	Attachments    []string      `json:"attachments"`
}

func (r createActionLogRequest) command() application.CreateActionLogCommand {
	return application.CreateActionLogCommand{
		DealID:         r.DealID.Value,
		Title:          r.Title,
		ActionDate:     r.ActionDate,
		ActionDetails:  r.ActionDetails,
		NextAction:     r.NextAction,
		NextActionDate: r.NextActionDate.Value,
		Status:         r.Status,
		Attachments:    r.Attachments,
	}
}

// updateActionLogRequest 不允许修改 dealId
type updateActionLogRequest struct {
	Title          *string        `json:"title"`
	ActionDate     OptionalDate   `json:"actionDate"`
	ActionDetails  *string        `json:"actionDetails"`
	NextAction     *string        `json:"nextAction"`
	NextActionDate OptionalDate   `json:"nextActionDate"`
	Status         *domain.Status `json:"status"`
	Attachments    *[]string      `json:"attachments"`
}

func (r updateActionLogRequest) patch() domain.ActionLogPatch {
	p := domain.ActionLogPatch{
		Title:         r.Title,
		ActionDetails: r.ActionDetails,
		NextAction:    r.NextAction,
		Status:        r.Status,
		Attachments:   r.Attachments,
	}
	if r.ActionDate.Value != nil {
		p.ActionDate = r.ActionDate.Value
	}
	if r.NextActionDate.Present {
		v := r.NextActionDate.Value
		p.NextActionDate = &v
	}
	return p
}

type moveCardRequest struct {
	DealID    FlexInt       `json:"dealId"`
	NewStatus domain.Status `json:"newStatus"`
	OldStatus domain.Status `json:"oldStatus"`
}

func (r moveCardRequest) command() application.MoveCardCommand {
	return application.MoveCardCommand{
		DealID:    r.DealID.Value,
		NewStatus: r.NewStatus,
		OldStatus: r.OldStatus,
	}
}

type createIntroducerRequest struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Role    string `json:"role"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Status  string `json:"status"`
}

func (r createIntroducerRequest) command() application.CreateIntroducerCommand {
	return application.CreateIntroducerCommand{
		Name:    r.Name,
		Company: r.Company,
		Role:    r.Role,
		Email:   r.Email,
		Phone:   r.Phone,
		Status:  domain.IntroducerStatus(r.Status),
	}
}

// parseID 非数字 ID 视为不存在
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(domain.ErrNotFound, "no record with id %q", raw)
	}
	return id, nil
}
